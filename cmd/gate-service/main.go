// Command gate-service runs the gate scanning API used by venue devices.
package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ms-marketplace/internal/app"
	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/telemetry"
	"ms-marketplace/internal/tickets"
	"ms-marketplace/internal/tickets/gate"
	"ms-marketplace/internal/tickets/qr"
)

func main() {
	cfg, log := app.Bootstrap("ticket-gate")
	defer log.Close()

	ctx := context.Background()
	gin.SetMode(gin.ReleaseMode)
	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry, cfg.Telemetry.ServiceName+"-gate", log)

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	codec, err := qr.NewCodec(cfg.Tickets.QRSecret)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Ticket codes: %v", err))
	}
	verifier, err := app.UserVerifier(ctx, cfg.Auth, log)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	publisher, closePublisher := app.NewPublisher(cfg.Kafka, log)
	scanner := tickets.NewService(bunDB, codec, publisher, cfg.Kafka.Topics, log)

	router := gate.NewRouter(gate.NewHandler(scanner, log), verifier, auth.NewRevocations(redisClient), log)
	server := app.NewServer(cfg.Server.GatePort, otelhttp.NewHandler(router, "ticket-gate"), cfg.Server)

	app.Serve(server, "Ticket gate", log,
		closePublisher,
		func() { shutdownTracing(context.Background()) },
		func() { redisClient.Close() },
		func() { bunDB.Close() },
	)
}
