// Command notify-worker consumes order and booking events and sends the
// buyer notifications.
package main

import (
	"context"
	"fmt"

	"ms-marketplace/internal/accounts"
	"ms-marketplace/internal/app"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/kafka"
	"ms-marketplace/internal/notify"
)

func main() {
	cfg, log := app.Bootstrap("notify-worker")
	defer log.Close()

	if !cfg.Kafka.Enabled {
		log.Fatal("CONFIG", "KAFKA_ENABLED is false, nothing to consume")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	dispatcher := notify.NewDispatcher(notify.LogMailer{Logger: log}, accounts.NewService(bunDB, log), cfg.Kafka.Topics, log)
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, dispatcher.Subscriptions(), log)

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx, dispatcher.Handle) }()

	go func() {
		app.WaitForSignal(log)
		cancel()
	}()

	if err := <-done; err != nil {
		log.Error("KAFKA", fmt.Sprintf("Consumer exited: %v", err))
	}
	if err := consumer.Close(); err != nil {
		log.Error("KAFKA", fmt.Sprintf("Failed to close consumer: %v", err))
	}
	log.Info("APP", "✅ Notify worker shutdown complete")
}
