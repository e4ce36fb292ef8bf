package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"quiz-room-service/internal/config"
	"quiz-room-service/internal/infra/postgres"
)

// NewSeedCmd loads quiz documents from a JSON or YAML file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Upsert quizzes from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			quizzes, err := postgres.ParseQuizzes(args[0], data)
			if err != nil {
				return err
			}

			db, err := postgres.OpenDB(cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			if err := postgres.NewQuizSeeder(db).Seed(cmd.Context(), quizzes); err != nil {
				return fmt.Errorf("seed %s: %w", args[0], err)
			}
			log.Printf("seeded %d quizzes from %s", len(quizzes), args[0])
			return nil
		},
	}
}
