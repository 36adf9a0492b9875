package main

import (
	"context"
	"fmt"
	"os"

	"github.com/xela07ax/attendance-engine/internal/cli"
	"github.com/xela07ax/attendance-engine/internal/infra"
	"github.com/xela07ax/attendance-engine/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loc, err := cfg.Engine.Location()
	if err != nil {
		return err
	}

	deps := &cli.Dependencies{
		Open: func(ctx context.Context) (cli.Source, func(), error) {
			repo, err := postgres.NewRepo(ctx, cfg.Database)
			if err != nil {
				return nil, nil, err
			}
			return repo, repo.Close, nil
		},
		Location:    loc,
		DefaultDays: cfg.Engine.DefaultDays,
		MaxDays:     cfg.Engine.MaxDays,
	}

	return cli.NewRootCmd(deps).ExecuteContext(context.Background())
}
