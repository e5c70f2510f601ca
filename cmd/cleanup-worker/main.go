// Command cleanup-worker expires unpaid bookings outside the API process.
package main

import (
	"context"
	"fmt"

	"ms-marketplace/internal/app"
	"ms-marketplace/internal/booking"
	bookingdb "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/cleanup"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/payment/stripe"
	"ms-marketplace/internal/promo"
	"ms-marketplace/internal/seats"
	seatsdb "ms-marketplace/internal/seats/db"
	seatsredis "ms-marketplace/internal/seats/redis"
)

func main() {
	cfg, log := app.Bootstrap("cleanup-worker")
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()
	redisClient, err := database.ConnectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer redisClient.Close()

	publisher, closePublisher := app.NewPublisher(cfg.Kafka, log)
	defer closePublisher()

	notifier := &seats.Notifier{Publisher: publisher, Topic: cfg.Kafka.Topics.SeatStatus, Logger: log}
	inventory := seats.NewInventory(seatsdb.New(bunDB), seatsredis.NewLocker(redisClient, log), notifier, log)
	bookings := booking.NewService(bookingdb.New(bunDB), seatsdb.New(bunDB), inventory, promo.NewService(bunDB, log), publisher, cfg.Kafka.Topics, cfg.Booking, log)

	// Without Stripe credentials expired bookings keep their intents; the
	// processor cancels them on its own schedule.
	if gateway, err := stripe.New(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, log); err == nil {
		bookings.Intents = gateway
	} else {
		log.Warn("STRIPE", "Running without payment intent cancellation")
	}

	job := cleanup.NewJob(bookings, cfg.Booking.CleanupInterval, cfg.Booking.CleanupBatchSize, log)
	job.Start(ctx)

	listener := &seats.ExpiryListener{Client: redisClient, Notifier: notifier, Cleanup: job, Logger: log}
	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Error("REDIS", fmt.Sprintf("Hold expiry listener stopped: %v", err))
		}
	}()

	app.WaitForSignal(log)
	cancel()
	job.Stop()
	log.Info("APP", "✅ Cleanup worker shutdown complete")
}
