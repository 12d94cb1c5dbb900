package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/duracloud/duracloud-sub013/pkg/chunkstore"
	"github.com/duracloud/duracloud-sub013/pkg/chunkstore/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the chunktool command tree
func NewRootCommand() *cobra.Command {
	var envPrefix string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "chunktool",
		Short: "Chunk, stitch and verify large content items",
		Long: `chunktool splits content into chunks stored next to an XML manifest,
reassembles chunked items and checks stored chunks against their manifests.

Storage and catalog are configured from the environment (STORAGE_URL,
DATABASE_URL, MAX_CHUNK_SIZE, ...). A .env file in the working directory
is loaded when present.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", "", "prefix of the configuration environment variables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewChunkCommand())
	rootCmd.AddCommand(NewStitchCommand())
	rootCmd.AddCommand(NewVerifyCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewCopyCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewListingCommand())
	rootCmd.AddCommand(NewScanCommand())

	return rootCmd
}

// newLogger logs to stderr so command output on stdout stays clean
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newServiceFromFlags builds a service from the environment
func newServiceFromFlags(cmd *cobra.Command) (chunkstore.Service, *slog.Logger, error) {
	envPrefix, _ := cmd.Flags().GetString("env-prefix")
	logger := newLogger(cmd)

	cfg, err := config.Load(
		config.WithEnv(envPrefix),
		config.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	svc, err := cfg.BuildService(cmd.Context())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build service: %w", err)
	}
	return svc, logger, nil
}

// manifestIDArg accepts either a source content id or a manifest id
func manifestIDArg(id string) string {
	if chunkstore.IsManifestID(id) {
		return id
	}
	return chunkstore.ManifestID(id)
}
