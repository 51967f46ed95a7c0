package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/worldsync-dev/worldsync/pkg/archive"
	"github.com/worldsync-dev/worldsync/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		addr            string
		maxSessions     int
		heartbeat       time.Duration
		allowAllOrigins bool
		debug           bool

		archiveBucket   string
		archivePrefix   string
		archiveInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		Long: `Start the WebSocket sync server.

Routes:
  /         demo browser client
  /ws       WebSocket endpoint
  /healthz  liveness probe
  /metrics  Prometheus metrics

With --archive-bucket set, world snapshots are written to S3 on an
interval using the ambient AWS credentials.

Examples:
  worldsync serve
  worldsync serve --addr=:9000 --max-sessions=500
  worldsync serve --archive-bucket=world-archive --archive-interval=30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveOptions{
				addr:            addr,
				maxSessions:     maxSessions,
				heartbeat:       heartbeat,
				allowAllOrigins: allowAllOrigins,
				debug:           debug,
				archiveBucket:   archiveBucket,
				archivePrefix:   archivePrefix,
				archiveInterval: archiveInterval,
			})
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Address to listen on")
	cmd.Flags().IntVar(&maxSessions, "max-sessions", 0, "Maximum concurrent sessions (0 = unlimited)")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 30*time.Second, "Interval between server pings")
	cmd.Flags().BoolVar(&allowAllOrigins, "allow-all-origins", false, "Skip the same-origin check on WebSocket upgrades")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&archiveBucket, "archive-bucket", "", "S3 bucket for periodic snapshot archives (empty = disabled)")
	cmd.Flags().StringVar(&archivePrefix, "archive-prefix", "snapshots/", "Key prefix for snapshot archives")
	cmd.Flags().DurationVar(&archiveInterval, "archive-interval", time.Minute, "Interval between snapshot archives")

	return cmd
}

type serveOptions struct {
	addr            string
	maxSessions     int
	heartbeat       time.Duration
	allowAllOrigins bool
	debug           bool

	archiveBucket   string
	archivePrefix   string
	archiveInterval time.Duration
}

func runServe(opts serveOptions) error {
	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	config := server.DefaultConfig()
	config.Address = opts.addr
	config.MaxSessions = opts.maxSessions
	config.SessionConfig.HeartbeatInterval = opts.heartbeat
	if opts.allowAllOrigins {
		config.CheckOrigin = func(r *http.Request) bool { return true }
	}

	srv := server.New(config, logger)

	if opts.archiveBucket != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return err
		}
		arch := archive.NewS3Archive(s3.NewFromConfig(awsCfg), opts.archiveBucket, opts.archivePrefix, logger)
		go arch.Run(ctx, srv.World(), opts.archiveInterval)
	}

	return srv.Run()
}
