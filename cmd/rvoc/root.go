package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/xraph/rvoc"
	audithook "github.com/xraph/rvoc/audit_hook"
	"github.com/xraph/rvoc/engine"
	"github.com/xraph/rvoc/store/postgres"
	redisstore "github.com/xraph/rvoc/store/redis"
)

// app carries what every subcommand needs after flag parsing.
type app struct {
	configPath  string
	databaseURL string

	config rvoc.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rvoc",
		Short:         "RVoc vocabulary trainer backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&a.databaseURL, "database-url", "", "PostgreSQL URL, overrides the config file")

	root.AddCommand(
		newWebCmd(a),
		newApplyMigrationsCmd(a),
		newRunJobCmd(a),
		newListJobsCmd(a),
		newExpireAllSessionsCmd(a),
		newExpireAllPasswordsCmd(a),
		newSetPasswordCmd(a),
	)
	return root
}

func (a *app) load(logOut io.Writer) error {
	cfg, err := rvoc.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.databaseURL != "" {
		cfg.Database.URL = a.databaseURL
	}
	logger, err := newLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}
	a.config = cfg
	a.logger = logger
	slog.SetDefault(logger)
	return nil
}

func newLogger(c rvoc.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("%w: log.level %q", rvoc.ErrInvalidConfig, c.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log.format %q", rvoc.ErrInvalidConfig, c.Format)
	}
}

func (a *app) openStore(ctx context.Context) (*postgres.Store, error) {
	return postgres.New(ctx, a.config.Database.URL,
		postgres.WithLogger(a.logger),
		postgres.WithMaxRetries(a.config.Database.MaxTransactionRetries),
		postgres.WithMaxConns(a.config.Database.MaxConns),
	)
}

// buildEngine opens the store and assembles the engine. The returned
// cleanup closes everything buildEngine opened.
func (a *app) buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{st.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	var opts []engine.Option
	if a.config.Log.Audit {
		auditLog := a.logger.With(slog.String("component", "audit"))
		opts = append(opts, engine.WithExtension(audithook.New(audithook.SlogRecorder(auditLog), audithook.WithLogger(a.logger))))
	}
	if a.config.Redis.URL != "" {
		ropts, err := goredis.ParseURL(a.config.Redis.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("%w: redis.url: %v", rvoc.ErrInvalidConfig, err)
		}
		client := goredis.NewClient(ropts)
		closers = append(closers, client.Close)
		opts = append(opts, engine.WithSessionStore(redisstore.NewSessionCache(client, st,
			redisstore.WithLogger(a.logger),
			redisstore.WithTTL(a.config.Redis.SessionCacheTTL),
		)))
	}

	eng, err := engine.Build(st, a.config, a.logger, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}
