// Package main provides the gpurt CLI.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/born-ml/gpurt/internal/envconfig"
)

const version = "v0.1.0-dev"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: envconfig.LogLevel()})))

	if err := NewCLI().ExecuteContext(context.Background()); err != nil {
		slog.Error("gpurt failed", "error", err)
		os.Exit(1)
	}
}
