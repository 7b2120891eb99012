// Command openshelf is the operations CLI: schema migrations, seeding,
// bootstrap of the first admin account and a one-shot overdue-loan sweep.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/jackc/pgx/v5/stdlib"

	"openshelf.org/internal/auth"
	"openshelf.org/internal/migrate"
	"openshelf.org/internal/store/pg"
)

var (
	flagDSN        string
	flagMigrations string
	flagSeeds      string
)

func main() {
	log.SetFlags(0)

	root := &cobra.Command{
		Use:           "openshelf",
		Short:         "OpenShelf operations toolbox",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagDSN, "dsn", os.Getenv("OPENSHELF_PG_DSN"), "PostgreSQL DSN")
	root.PersistentFlags().StringVar(&flagMigrations, "migrations", "ops/migrations/sql", "path to SQL migrations")
	root.PersistentFlags().StringVar(&flagSeeds, "seeds", "ops/migrations/seeds", "path to SQL seeds")

	root.AddCommand(migrateCmd(), seedCmd(), createAdminCmd(), sweepCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func openDB() (*sql.DB, error) {
	if flagDSN == "" {
		return nil, errors.New("missing DSN: provide via --dsn or OPENSHELF_PG_DSN")
	}
	return sql.Open("pgx", flagDSN)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or roll back schema migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			mgr := migrate.NewManager(db, flagMigrations, flagSeeds)
			switch args[0] {
			case "up":
				return mgr.Up(ctx)
			case "down":
				return mgr.Down(ctx)
			case "status":
				history, err := mgr.Status(ctx)
				if err != nil {
					return err
				}
				for _, item := range history {
					fmt.Println(item)
				}
				return nil
			default:
				return fmt.Errorf("unknown migrate command %q", args[0])
			}
		},
	}
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Apply seed data (categories)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			return migrate.NewManager(db, flagMigrations, flagSeeds).Seed(ctx)
		},
	}
}

func createAdminCmd() *cobra.Command {
	var email, password, firstName, lastName string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an account with the admin role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || len(password) < 8 {
				return errors.New("--email and a --password of at least 8 characters are required")
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			store := auth.NewPGStore(db)
			acc := &auth.Account{Email: email, PasswordHash: hash, Status: "active"}
			profile := &auth.Profile{FirstName: firstName, LastName: lastName}
			if err := store.CreateAccount(ctx, acc, profile); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			if err := store.SetRole(ctx, acc.ID, auth.RoleAdmin); err != nil {
				return fmt.Errorf("set role: %w", err)
			}
			fmt.Printf("created admin %s (%s)\n", email, acc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue loans once, without going through the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flagDSN == "" {
				return errors.New("missing DSN: provide via --dsn or OPENSHELF_PG_DSN")
			}
			store, err := pg.Open(flagDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			n, err := store.ExpireOverdue(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("expired %d loans\n", n)
			return nil
		},
	}
}
