package main

import (
	"context"
	"log"

	"github.com/Scille/parsec-cloud-sub009/internal/server"
	"github.com/Scille/parsec-cloud-sub009/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
