package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ms-marketplace/internal/accounts"
	"ms-marketplace/internal/api"
	"ms-marketplace/internal/app"
	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/booking"
	bookingdb "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/catalog"
	"ms-marketplace/internal/cleanup"
	"ms-marketplace/internal/content"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/payment"
	"ms-marketplace/internal/payment/stripe"
	"ms-marketplace/internal/promo"
	"ms-marketplace/internal/refund"
	"ms-marketplace/internal/seats"
	seatsdb "ms-marketplace/internal/seats/db"
	seatsredis "ms-marketplace/internal/seats/redis"
	"ms-marketplace/internal/sse"
	"ms-marketplace/internal/telemetry"
	"ms-marketplace/internal/tickets"
	"ms-marketplace/internal/tickets/qr"
)

func main() {
	cfg, log := app.Bootstrap("marketplace-api")
	defer log.Close()

	log.Info("APP", "Starting marketplace API initialization")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry, cfg.Telemetry.ServiceName, log)

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	if err := prepareSchema(ctx, cfg, bunDB, log); err != nil {
		log.Fatal("DATABASE", err.Error())
	}

	publisher, closePublisher := app.NewPublisher(cfg.Kafka, log)

	gateway, err := stripe.New(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, log)
	if err != nil {
		log.Fatal("STRIPE", err.Error())
	}
	codec, err := qr.NewCodec(cfg.Tickets.QRSecret)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Ticket codes: %v", err))
	}

	emitter := sse.NewEmitter()
	notifier := &seats.Notifier{
		Publisher: publisher,
		Emitter:   emitter,
		Topic:     cfg.Kafka.Topics.SeatStatus,
		Logger:    log,
	}
	inventory := seats.NewInventory(seatsdb.New(bunDB), seatsredis.NewLocker(redisClient, log), notifier, log)

	coupons := promo.NewService(bunDB, log)
	bookings := booking.NewService(bookingdb.New(bunDB), seatsdb.New(bunDB), inventory, coupons, publisher, cfg.Kafka.Topics, cfg.Booking, log)
	bookings.Intents = gateway

	payments := payment.NewService(bunDB, inventory, bookings, gateway, codec, cfg.Kafka.Topics, cfg.Booking.HoldTTL, log)
	payments.Publisher = publisher
	payments.Notifier = notifier
	payments.Checkouts = emitter

	refunds := refund.NewService(bunDB, gateway, inventory, bookings, publisher, cfg.Kafka.Topics, log)
	ticketSvc := tickets.NewService(bunDB, codec, publisher, cfg.Kafka.Topics, log)

	verifier, err := app.UserVerifier(ctx, cfg.Auth, log)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}
	revocations := auth.NewRevocations(redisClient)

	job := cleanup.NewJob(bookings, cfg.Booking.CleanupInterval, cfg.Booking.CleanupBatchSize, log)
	job.Start(ctx)

	listener := &seats.ExpiryListener{Client: redisClient, Notifier: notifier, Cleanup: job, Logger: log}
	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Error("REDIS", fmt.Sprintf("Hold expiry listener stopped: %v", err))
		}
	}()

	handler := api.NewHandler(api.Services{
		Bookings: bookings,
		Payments: payments,
		Refunds:  refunds,
		Tickets:  ticketSvc,
		Seats:    inventory,
		Streams:  emitter,
		Catalog:  catalog.NewService(bunDB, log),
		Coupons:  coupons,
		Accounts: accounts.NewService(bunDB, log),
		Content:  content.NewService(bunDB, log),
	}, log)
	router := api.NewRouter(handler, verifier, revocations, log)

	server := app.NewServer(cfg.Server.Port, otelhttp.NewHandler(router, "marketplace-api"), cfg.Server)
	// SSE streams stay open past any write deadline.
	server.WriteTimeout = 0

	app.Serve(server, "Marketplace API", log,
		cancel,
		job.Stop,
		closePublisher,
		func() { shutdownTracing(context.Background()) },
		func() { redisClient.Close() },
		func() { bunDB.Close() },
	)
}
