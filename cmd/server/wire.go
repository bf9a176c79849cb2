//go:build wireinject
// +build wireinject

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/handler"
	"github.com/padlog/padlog/internal/repository"
	"github.com/padlog/padlog/internal/server"
	"github.com/padlog/padlog/internal/service"

	"github.com/google/wire"
)

type Application struct {
	Config  *config.Config
	Server  *http.Server
	Cleanup func()
}

func initializeApplication() (*Application, error) {
	wire.Build(
		// Infrastructure layer ProviderSets
		config.ProviderSet,

		// Business layer ProviderSets
		repository.ProviderSet,
		service.ProviderSet,
		handler.ProviderSet,

		// Server layer ProviderSet
		server.ProviderSet,

		// Cleanup function provider
		provideCleanup,

		// Application struct
		wire.Struct(new(Application), "Config", "Server", "Cleanup"),
	)
	return nil, nil
}

func provideCleanup(
	db *sql.DB,
	sweeper *service.SweeperService,
	idempotencyCleanup *service.IdempotencyCleanupService,
	timingWheel *service.TimingWheelService,
	audit *service.AuditService,
) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Cleanup steps in reverse dependency order
		cleanupSteps := []struct {
			name string
			fn   func() error
		}{
			{"SweeperService", func() error {
				if sweeper != nil {
					sweeper.Stop()
				}
				return nil
			}},
			{"IdempotencyCleanupService", func() error {
				if idempotencyCleanup != nil {
					idempotencyCleanup.Stop()
				}
				return nil
			}},
			{"TimingWheelService", func() error {
				if timingWheel != nil {
					timingWheel.Stop()
				}
				return nil
			}},
			{"AuditService", func() error {
				// Audit drains buffered entries into the database, so it
				// must stop before the pool closes.
				if audit != nil {
					audit.Stop()
				}
				return nil
			}},
			{"Database", func() error {
				return db.Close()
			}},
		}

		for _, step := range cleanupSteps {
			if err := step.fn(); err != nil {
				log.Printf("[Cleanup] %s failed: %v", step.name, err)
				// Continue with remaining cleanup steps even if one fails
			} else {
				log.Printf("[Cleanup] %s succeeded", step.name)
			}
		}

		// Check if context timed out
		select {
		case <-ctx.Done():
			log.Printf("[Cleanup] Warning: cleanup timed out after 10 seconds")
		default:
			log.Printf("[Cleanup] All cleanup steps completed")
		}
	}
}
