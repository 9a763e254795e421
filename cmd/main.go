package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/duelquiz/internal/config"
	"github.com/victornm/duelquiz/internal/server"
	"github.com/victornm/duelquiz/internal/telemetry"
)

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:           "duelquiz",
		Short:         "Two-player trivia duels over gRPC and HTTP.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&file, "config", "c", os.Getenv("CONFIG_PATH"), "path to the config file (env: CONFIG_PATH)")

	cmd.AddCommand(newServeCmd(&file), newSeedCmd(&file))
	cmd.CompletionOptions.HiddenDefaultCmd = true

	return cmd
}

func newServeCmd(file *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(*file)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, os.Interrupt)
			defer stop()

			s, err := server.Init(ctx, c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			errc := make(chan error, 1)
			go func() { errc <- s.Start(ctx) }()

			select {
			case <-ctx.Done():
			case err = <-errc:
				slog.ErrorContext(ctx, "server: stopped with error", "error", err)
			}

			s.Shutdown()
			return err
		},
	}
}

func newSeedCmd(file *string) *cobra.Command {
	var questions string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions into the catalog",
		Long:  "Load questions from a JSON document of the form {\"questions\": [...]}, or the built-in set when --file is not given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(*file)
			if err != nil {
				return err
			}

			var n int
			if questions == "" {
				n, err = server.Seed(cmd.Context(), c, nil)
			} else {
				f, ferr := os.Open(questions)
				if ferr != nil {
					return ferr
				}
				defer f.Close()

				n, err = server.Seed(cmd.Context(), c, f)
			}
			if err != nil {
				return err
			}

			slog.InfoContext(cmd.Context(), "seed: questions loaded", "count", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&questions, "file", "f", "", "questions document to load")

	return cmd
}

func loadConfig(file string) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.Load(file, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	if err := telemetry.SetupLogger(c.Log.Level, c.Log.Format); err != nil {
		return c, fmt.Errorf("setup logger: %w", err)
	}

	return c, nil
}
