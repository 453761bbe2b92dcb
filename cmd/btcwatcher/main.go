package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/0xmhha/btcwatcher/internal/cli"
	"github.com/0xmhha/btcwatcher/pkg/logger"
)

func main() {
	// A missing .env file is not an error
	_ = godotenv.Load()

	// Bootstrap logger; run builds its own from the loaded config
	log, err := logger.New(true, false, "kitchen")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	root := cli.NewRootCommand(log)
	if err := root.Execute(); err != nil {
		log.Error("Command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
