// Command authctl runs operator tasks against the authkeeper database.
//
//	authctl seed-admin [-email E] [-username U] [-d DSN]
//	authctl migrate [-d DSN]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/authctl"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.LoadConfig()

	db, err := dbx.Open(ctx, repomanager.DriverName, cfg.DatabaseDSN, dbx.PoolOptions{PingTimeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	hasher, err := password.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	accounts := services.NewAccountService(db, rm, hasher, nil)

	app := authctl.NewApp(os.Stdin, os.Stdout, accounts, func(ctx context.Context) error {
		return rm.RunMigrations(ctx, db)
	})
	return app.Run(ctx, os.Args[1:])
}
