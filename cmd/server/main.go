package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv" // .env loader for local development

	"github.com/iliyamo/lingua-enrollment/internal/app"    // shared wiring
	"github.com/iliyamo/lingua-enrollment/internal/config" // internal config loader
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	cfg := config.Load() // Load environment config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, true)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.Close()

	e, err := a.HTTP()
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	// Expired holds must be reclaimed even if no request ever touches them.
	if err := a.Sweeper.Start(); err != nil {
		log.Fatalf("startup: %v", err)
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := a.Consumer().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("enrollment-consumer: stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	select {
	case <-a.Sweeper.Stop().Done():
	case <-shutdownCtx.Done():
		log.Println("[SWEEPER] tick still running at shutdown")
	}
	<-consumerDone
}
