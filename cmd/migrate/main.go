// migrate applies the embedded session-store schema to DATABASE_URL.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sethvargo/go-envconfig"

	"github.com/yarago/auth-service/internal/infrastructure/db/postgres"
)

type migrateConfig struct {
	DatabaseURL string `env:"DATABASE_URL, required"`
}

func main() {
	direction := flag.String("direction", postgres.DirectionUp, "Migration direction: up or down")
	flag.Parse()

	var cfg migrateConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if err := postgres.Migrate(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("migrations applied (%s)\n", *direction)
}
