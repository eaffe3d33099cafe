package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/picarch/internal/config"
	"github.com/kozaktomas/picarch/internal/database/postgres"
)

// openStore connects to PostgreSQL, applies migrations and returns the image
// repository. The caller closes the pool.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Pool, *postgres.ImageRepository, error) {
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, postgres.NewImageRepository(pool), nil
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
