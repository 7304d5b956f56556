package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/baechuer/teamup/internal/infrastructure/queue"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "migrate",
		Usage: "game-service schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "postgres DSN",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "migration files",
				Value: "file://migrations",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *migrate.Migrate) error { return m.Up() })
				},
			},
			{
				Name:      "down",
				Usage:     "roll back N migrations (default 1)",
				ArgsUsage: "[N]",
				Action: func(c *cli.Context) error {
					n := 1
					if c.Args().Len() > 0 {
						if _, err := fmt.Sscanf(c.Args().First(), "%d", &n); err != nil || n <= 0 {
							return fmt.Errorf("invalid step count %q", c.Args().First())
						}
					}
					return withMigrator(c, func(m *migrate.Migrate) error { return m.Steps(-n) })
				},
			},
			{
				Name:  "version",
				Usage: "print the current schema version",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *migrate.Migrate) error {
						v, dirty, err := m.Version()
						if errors.Is(err, migrate.ErrNilVersion) {
							fmt.Println("no migrations applied")
							return nil
						}
						if err != nil {
							return err
						}
						fmt.Printf("version %d (dirty=%t)\n", v, dirty)
						return nil
					})
				},
			},
			{
				Name:      "force",
				Usage:     "set the version without running migrations (clears dirty)",
				ArgsUsage: "VERSION",
				Action: func(c *cli.Context) error {
					var v int
					if _, err := fmt.Sscanf(c.Args().First(), "%d", &v); err != nil {
						return fmt.Errorf("invalid version %q", c.Args().First())
					}
					return withMigrator(c, func(m *migrate.Migrate) error { return m.Force(v) })
				},
			},
			{
				Name:  "river",
				Usage: "install or upgrade the job queue tables",
				Action: func(c *cli.Context) error {
					pool, err := pgxpool.New(c.Context, c.String("database-url"))
					if err != nil {
						return fmt.Errorf("postgres pool: %w", err)
					}
					defer pool.Close()
					if err := queue.Migrate(c.Context, pool); err != nil {
						return err
					}
					log.Println("river migrations applied")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withMigrator(c *cli.Context, fn func(m *migrate.Migrate) error) error {
	m, err := migrate.New(c.String("source"), c.String("database-url"))
	if err != nil {
		return fmt.Errorf("migration setup failed: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Printf("migrator close: source=%v db=%v", srcErr, dbErr)
		}
	}()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Printf("%s: done", c.Command.Name)
	return nil
}
