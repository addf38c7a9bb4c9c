package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "reviews",
	Short:         "reviews crawls short movie reviews into MongoDB and analyses them.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// ExecuteContext runs the CLI and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file and REVIEWS_* variables.
// Command flags are applied by each command afterwards.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// addStoreFlags registers the collection selectors shared by every command.
func addStoreFlags(cmd *cobra.Command, db, collection *string) {
	cmd.Flags().StringVar(db, "db", "", "MongoDB database name")
	cmd.Flags().StringVar(collection, "collection", "", "MongoDB collection name, one per movie")
}

func applyStoreFlags(cmd *cobra.Command, cfg *config.Config, db, collection string) {
	if cmd.Flags().Changed("db") {
		cfg.Mongo.Database = db
	}
	if cmd.Flags().Changed("collection") {
		cfg.Mongo.Collection = collection
	}
}
