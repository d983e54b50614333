// Package app wires configuration, infrastructure and services into the
// consolidator process and runs it until a signal arrives.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Application owns the process lifecycle.
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
}

// NewApplication builds the container under a context cancelled by SIGINT
// or SIGTERM.
func NewApplication(ctx context.Context) (*Application, error) {
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	container, err := NewContainer(appCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	container.Logger().Info("Application initialized successfully")
	return &Application{ctx: appCtx, cancel: cancel, container: container}, nil
}

// Run starts the consumer group and the query API and blocks until the
// context is cancelled or either of them fails. Consumer workers finish their
// in-flight message before Run returns.
func (a *Application) Run() error {
	return run(a.ctx, a.container)
}

func run(ctx context.Context, c *Container) error {
	eg, ctx := errgroup.WithContext(ctx)
	logger := c.Logger()

	eg.Go(func() error {
		return c.ConsumerGroup().Run(ctx)
	})

	srv := c.HTTPServer()
	eg.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received, draining...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Config().ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

// Shutdown releases every resource. Call it after Run returns.
func (a *Application) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.container.Config().ShutdownTimeout)
		defer cancel()
		a.container.Shutdown(ctx)
	}
}
