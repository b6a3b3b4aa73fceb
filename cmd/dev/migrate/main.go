package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"shopifyapp/internal/plan"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/db"
)

func main() {
	down := flag.Bool("down", false, "roll back every applied migration and exit")
	flag.Parse()

	cfg := config.Load()
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "file://migrations"
	}

	if *down {
		if err := db.MigrateDown(cfg.MigrationsPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "migrate down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations rolled back")
		return
	}

	// This uses DIRECT_URL if set.
	if err := db.MigrateConfig(cfg.MigrationsPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	// The runtime connection may differ from DIRECT_URL. DSNs are not printed.
	ctx := context.Background()
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtime db open failed: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	p, err := plan.EnsureOnInstall(ctx, plan.NewRepository(pool), cfg.Billing.DefaultPlan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "on-install plan failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("migrations applied, on-install plan %d (%s)\n", p.ID, p.Name)
}
