// Command seed fills the configured store with demo accounts and posts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"feedline/internal/bootstrap"
	"feedline/internal/config"
	"feedline/internal/seed"

	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	users := flag.Int("users", 10, "number of generated users")
	posts := flag.Int("posts", 3, "posts per generated user")
	fixtures := flag.String("fixtures", "", "YAML fixture file; replaces generated data")
	randSeed := flag.Int64("rand-seed", 0, "seed for reproducible fake data")
	flag.Parse()

	// Passwords are never baked in: every seeded account gets SEED_PASSWORD
	// unless its fixture carries its own.
	password := os.Getenv("SEED_PASSWORD")
	if password == "" && *fixtures == "" {
		return fmt.Errorf("SEED_PASSWORD must be set")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(ctx); err != nil {
			log.Printf("close runtime: %v", err)
		}
	}()

	var fx *seed.Fixtures
	if *fixtures != "" {
		if fx, err = seed.LoadFixtures(afero.NewOsFs(), *fixtures); err != nil {
			return err
		}
	}

	s := seed.New(rt.Deps.Repos, rt.Deps.Artifacts, seed.Options{
		Users:        *users,
		PostsPerUser: *posts,
		Password:     password,
		BcryptCost:   cfg.BcryptCost,
		RandSeed:     *randSeed,
	})
	sum, err := s.Run(ctx, fx)
	if err != nil {
		return fmt.Errorf("seed failed after %d users, %d posts: %w", sum.Users, sum.Posts, err)
	}
	log.Printf("seeded %d users and %d posts (%d existing accounts skipped)", sum.Users, sum.Posts, sum.Skipped)
	return nil
}
