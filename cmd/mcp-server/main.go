package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/app"
	"github.com/patrickwarner/openslot/internal/config"
	"github.com/patrickwarner/openslot/internal/observability"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// stdout carries the protocol, so logs go to stderr
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.MessageKey = "msg"

	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	name := cfg.ServiceName + "-mcp"
	logger = logger.Named(name).With(zap.String("service", name))

	ctx := context.Background()
	services, err := app.Open(ctx, cfg, logger, observability.NewNoOpRegistry())
	if err != nil {
		logger.Fatal("Failed to open services", zap.Error(err))
	}
	defer services.Close()

	srv := &slotServer{
		planner:   services.Planner,
		forecasts: services.Forecasts,
		store:     services.PG,
		ledger:    services.Ledger,
		logger:    logger,
	}

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	if err := newMCPServer(srv).Run(ctx, transport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
