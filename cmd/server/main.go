// Command server runs the authkeeper HTTP API and gRPC health endpoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
)

func main() {
	ctx := context.Background()

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "authkeeper: %v\n", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
