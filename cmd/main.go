// jobmate-fulfillment-service
//
// Request fulfillment pipeline: provider matching and ranking, the request
// and job-application lifecycles, request-to-booking conversion and
// multi-channel notifications.
//
// Exposes a REST API and a gRPC service used by the Gateway.
// Publishes EVENT_STATUS_CHANGED and EVENT_BOOKING_CREATED to Redis (and Kafka
// when configured) for downstream consumers.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"jobmate/fulfillment-service/internal/app"
	"jobmate/fulfillment-service/internal/config"
	"jobmate/fulfillment-service/internal/grpcserver"
	"jobmate/fulfillment-service/internal/httpapi"
	"jobmate/fulfillment-service/internal/reminder"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[fulfillment-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Backends + core ──────────────────────────────────────────────────────
	log.Println("[fulfillment-service] Connecting backends…")
	core, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[fulfillment-service] Startup: %v", err)
	}
	log.Printf("[fulfillment-service] Backends ready ✓ (%s)", core.Describe())

	// ── Reminders ────────────────────────────────────────────────────────────
	var sched *reminder.Scheduler
	if cfg.ReminderInterval > 0 {
		sched = reminder.NewScheduler(core.Reminders, cfg.ReminderInterval)
		if err := sched.Start(ctx); err != nil {
			log.Fatalf("[fulfillment-service] Reminder scheduler: %v", err)
		}
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	h := httpapi.NewHandler(core.Engine, core.Lifecycle, core.Conversion, core.Notify)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[fulfillment-service] v%s HTTP listening on :%s", version, cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[fulfillment-service] HTTP server error: %v", err)
		}
	}()

	// ── gRPC server ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("[fulfillment-service] gRPC listen: %v", err)
	}
	gsrv := grpc.NewServer()
	grpcserver.Register(gsrv, grpcserver.NewServer(core.Engine, core.Lifecycle, core.Conversion, core.Notify))

	go func() {
		log.Printf("[fulfillment-service] gRPC listening on :%s", cfg.GRPCPort)
		if err := gsrv.Serve(lis); err != nil {
			log.Fatalf("[fulfillment-service] gRPC server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[fulfillment-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[fulfillment-service] Shutdown error: %v", err)
	}
	gsrv.GracefulStop()

	// Drains in-flight background notifications before closing backends.
	if err := core.Close(); err != nil {
		log.Printf("[fulfillment-service] Close error: %v", err)
	}
	log.Println("[fulfillment-service] Stopped.")
}
