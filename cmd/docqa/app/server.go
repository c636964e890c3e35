// Package app builds the docqa command.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/docqa/cmd/docqa/app/options"
	"github.com/kart-io/docqa/internal/docqa"
	"github.com/kart-io/docqa/pkg/infra/app"
)

const commandDesc = `docqa document question answering service

docqa ingests document folders from Google Drive, S3 or a local directory and
answers questions about them.

This server provides:
  - Text extraction, chunking and OCR JSON output per document
  - Metadata extraction and vector embeddings stored in Milvus
  - Routed chat that answers questions or summarizes a document
  - An ingestion ledger in MongoDB for idempotent re-runs`

// NewApp wires the server options into the command line application.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	return app.NewApp(
		app.WithName(docqa.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)
}

// run builds the service from the loaded options and serves until a
// shutdown signal arrives.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx, stop := shutdownContext()
		defer stop()

		srv, err := cfg.NewServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}
		return srv.Run(ctx)
	}
}

// shutdownContext is cancelled by the first SIGINT or SIGTERM. A second
// signal during the graceful drain exits immediately.
func shutdownContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()

		again := make(chan os.Signal, 1)
		signal.Notify(again, os.Interrupt, syscall.SIGTERM)
		<-again
		os.Exit(1)
	}()
	return ctx, stop
}
