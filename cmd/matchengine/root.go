package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"matchengine/internal/config"
	"matchengine/internal/lock"
	"matchengine/internal/logger"
	"matchengine/internal/repository"
	"matchengine/internal/service"
)

// app is the state shared by every subcommand once config is loaded.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	var path string

	cmd := &cobra.Command{
		Use:           "matchengine",
		Short:         "Buyer-property matching engine",
		Long:          "Matches buyers to available properties: a deterministic hard filter, an AI taste ranking of the survivors, persisted match records and agent notifications.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(path)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&path, "config", "", "config file (default is ./matchengine.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	_ = a.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("log.json", cmd.PersistentFlags().Lookup("log-json"))

	cmd.Version = fmt.Sprintf("%s (%s)", Version, GitCommit)

	cmd.AddCommand(
		newServeCommand(a),
		newMatchCommand(a),
		newMigrateCommand(a),
		newEmbedCommand(a),
		newConfigCommand(),
		newVersionCommand(),
	)
	return cmd
}

func (a *app) init(path string) error {
	if err := config.Init(a.v, path); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}

// noConfig replaces the root pre-run for commands that never read config.
func noConfig(*cobra.Command, []string) error { return nil }

func (a *app) openStore() (*repository.Store, error) {
	store, err := repository.Open(a.cfg.Database.Driver, a.cfg.Database.DSN, a.cfg.Database.MaxConnections, a.cfg.Database.MaxIdleConnections)
	if err != nil {
		return nil, err
	}
	a.log.Info("connected to database", zap.String("driver", a.cfg.Database.Driver))
	return store, nil
}

// newOracle returns nil when ranking is disabled or unconfigured.
func (a *app) newOracle(ctx context.Context) (service.Oracle, error) {
	switch a.cfg.Oracle.Provider {
	case "openai":
		client := service.NewOpenAIClient(&a.cfg.OpenAI, a.log)
		if !client.IsEnabled() {
			a.log.Warn("openai oracle selected without an api key, ranking is disabled")
			return nil, nil
		}
		a.log.Info("ranking oracle ready",
			zap.String(logger.FieldProvider, client.Name()),
			zap.String(logger.FieldModel, client.Model()),
			zap.String("api_base", a.cfg.OpenAI.APIBase))
		return client, nil
	case "gemini":
		oracle, err := service.NewGeminiOracle(ctx, a.cfg.Gemini.APIKey, a.cfg.Gemini.Model)
		if err != nil {
			return nil, fmt.Errorf("init gemini oracle: %w", err)
		}
		a.log.Info("ranking oracle ready",
			zap.String(logger.FieldProvider, oracle.Name()),
			zap.String(logger.FieldModel, oracle.Model()))
		return oracle, nil
	default:
		a.log.Warn("ranking oracle disabled")
		return nil, nil
	}
}

// newLocker returns a redis locker when redis.addr is set. The returned
// closer is never nil.
func (a *app) newLocker(ctx context.Context) (lock.Locker, func(), error) {
	addr := strings.TrimSpace(a.cfg.Redis.Addr)
	if addr == "" {
		return lock.NewMemoryLocker(), func() {}, nil
	}

	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr, Password: a.cfg.Redis.Password, DB: a.cfg.Redis.DB}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.log.Info("per-buyer locks backed by redis", zap.String("addr", opts.Addr))
	return lock.NewRedisLocker(client, a.cfg.LockTTL(), a.log), func() { _ = client.Close() }, nil
}

func (a *app) newMatchService(store *repository.Store, oracle service.Oracle, sink service.NotificationSink, locker lock.Locker) *service.MatchService {
	shortlist := service.NewRanker(a.cfg.Ranking.WeightSimilarity, a.cfg.Ranking.WeightPrice)
	ranker := service.NewSoftRanker(oracle, shortlist, service.SoftRankerConfig{
		Timeout:       a.cfg.OracleTimeout(),
		RateLimit:     a.cfg.Oracle.RateLimit,
		Burst:         a.cfg.Oracle.Burst,
		MaxCandidates: a.cfg.Oracle.MaxCandidates,
		MaxLogLength:  a.cfg.Oracle.MaxLogLength,
	}, a.log)
	dispatcher := service.NewDispatcher(store, sink, a.log)
	return service.NewMatchService(store, service.NewHardFilter(a.log), ranker, dispatcher, locker, a.log)
}
