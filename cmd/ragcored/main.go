package main

import (
	"context"
	"flag"
	"os"

	ragcore "github.com/finchat/ragcore"
	"github.com/finchat/ragcore/common/logger"
	"github.com/finchat/ragcore/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}

	client, err := ragcore.NewClient(context.Background(), cfg)
	if err != nil {
		logger.Errorf("start client: %v", err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Infof("ragcore %s serving on stdio", ragcore.Version)
	if err := ragcore.ServeStdio(client); err != nil {
		logger.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
