package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dimuls/jdlib/internal/cache"
	"github.com/dimuls/jdlib/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve detection, landmarks and embeddings over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		logger.Info("starting jdlib server",
			zap.String("version", Version),
			zap.String("build_time", BuildTime),
			zap.String("git_commit", GitCommit))

		j, err := openJdlib()
		if err != nil {
			return err
		}
		defer j.Close()

		var c server.Cache
		if cfg.Redis.Enabled {
			rc := cache.New(&cfg.Redis, logger)
			defer rc.Close()

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := rc.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warn("redis connection failed, cache disabled", zap.Error(err))
			} else {
				logger.Info("redis connected successfully", zap.String("addr", cfg.Redis.Addr))
				c = rc
			}
		}

		report := reportPlatform()
		info := server.Info{
			Version:     Version,
			BuildTime:   BuildTime,
			GitCommit:   GitCommit,
			Platform:    report.Platform,
			CPUFeatures: report.CPUFeatures,
			Embeddings:  j.HasEmbeddings(),
		}

		return server.New(j, c, cfg.Server, info, logger).Run(ctx, cfg.Server.Addr)
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", "", "Listen address (default :8080)")
	f.Uint("max-size", 0, "Downscale uploads so neither side exceeds this many pixels, 0 to disable")
	f.Bool("cache", false, "Cache results in Redis")
	rootCmd.AddCommand(serveCmd)
}
