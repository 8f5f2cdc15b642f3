// Package cli implements the jdlib command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dimuls/jdlib"
	"github.com/dimuls/jdlib/internal/config"
	"github.com/dimuls/jdlib/internal/logging"
)

// Set at build time with -ldflags "-X github.com/dimuls/jdlib/internal/cli.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:     "jdlib",
	Short:   "Face detection, landmarks and embeddings with a packaged dlib",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Log.Mode)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync(logger)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./"+config.DefaultFile+" if present)")
	f.String("models", "", "Directory with the dlib model files")
	f.String("landmarks-model", "", "Facial landmarks model, relative to --models")
	f.String("embedding-model", "", "Face embedding model, relative to --models")
	f.String("temp-dir", "", "Directory the native library is staged in")
	f.String("library", "", "Load the native library from this path instead of the packaged one")
	f.String("log-mode", "", "Log mode: debug or release")
	f.String("db", "", "PostgreSQL connection string")
	f.Float64P("threshold", "t", 0, "Face matching threshold (lower is stricter)")
}

// openJdlib creates an instance from the loaded configuration. Embeddings are
// only enabled when an embedding model is configured.
func openJdlib() (*jdlib.Jdlib, error) {
	opts := []jdlib.Option{
		jdlib.WithLogger(logger),
		jdlib.WithTempDir(cfg.Native.TempDir),
		jdlib.WithLibraryPath(cfg.Native.LibraryPath),
	}

	landmarks := cfg.Models.LandmarksPath()
	if embedding := cfg.Models.EmbeddingPath(); embedding != "" {
		return jdlib.NewWithEmbeddings(landmarks, embedding, opts...)
	}
	return jdlib.New(landmarks, opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
