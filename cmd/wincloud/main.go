package main

import (
	"context"
	"log"
	"os"

	"github.com/wincloud/wincloud/internal/cli"
	"github.com/wincloud/wincloud/internal/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
