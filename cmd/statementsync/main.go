package main

import (
	"context"
	"log/slog"
	"os"

	"statementsync/cmd/statementsync/commands"
	"statementsync/internal/components/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	t, err := telemetry.SetupFromEnv(ctx, "statementsync")
	if err == nil {
		telemetry.InstrumentPerfStats(ctx, telemetry.SlogAPI{})
	} else if !os.IsNotExist(err) {
		slog.Warn("telemetry disabled", "err", err)
	}

	err = commands.ExecuteContext(ctx)

	cancel()
	t.Shutdown(context.Background())
	if err != nil {
		os.Exit(1)
	}
}
