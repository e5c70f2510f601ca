// Command migrate manages the Postgres schema.
//
//	migrate up        schema migrations only
//	migrate seed      schema plus demo data
//	migrate down      roll everything back
//	migrate to N      move to version N
//	migrate version   print the current version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"ms-marketplace/internal/app"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/database/migrations"
)

func main() {
	dir := flag.String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] up|seed|down|to N|version")
	}
	flag.Parse()

	cfg, log := app.Bootstrap("migrate")
	defer log.Close()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *dir == "" {
		*dir = cfg.Database.MigrationsDir
	}

	bunDB, err := database.Connect(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	cmd := flag.Arg(0)
	runner := migrations.NewRunner(bunDB, migrations.Options{Dir: *dir, SeedData: cmd == "seed"}, log)
	defer runner.Close()

	switch cmd {
	case "up", "seed":
		err = runner.Run()
	case "down":
		err = runner.Down()
	case "to":
		var v uint64
		v, err = strconv.ParseUint(flag.Arg(1), 10, 32)
		if err == nil {
			err = runner.To(uint(v))
		}
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = runner.Version()
		if err == nil {
			fmt.Printf("version %d (dirty: %v)\n", v, dirty)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", fmt.Sprintf("%s finished", cmd))
}
