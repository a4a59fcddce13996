package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/posrt"
	"github.com/tokmz/posrt/pkg/audit"
	"github.com/tokmz/posrt/pkg/cache"
	"github.com/tokmz/posrt/pkg/config"
	"github.com/tokmz/posrt/pkg/ingest"
	"github.com/tokmz/posrt/pkg/logger"
	"github.com/tokmz/posrt/pkg/orm"
	"github.com/tokmz/posrt/pkg/realtime"
	"github.com/tokmz/posrt/pkg/tracing"
	"github.com/tokmz/posrt/server"
)

// source 消息队列数据源
type source interface {
	Run(ctx context.Context) error
}

// app 进程内组件，closers 逆序释放
type app struct {
	cfg     *AppConfig
	log     logger.Logger
	engine  *posrt.Engine
	manager *realtime.Manager
	sources []source
	closers []func()
}

// reloadLogLevel 配置文件变更时只重新应用日志级别
func reloadLogLevel(log logger.Logger) func(*config.Config) {
	return func(c *config.Config) {
		level, err := logger.ParseLevel(c.GetString("log.level"))
		if err != nil {
			log.Warn("invalid log level on reload", zap.Error(err))
			return
		}
		if level != log.Level() {
			log.SetLevel(level)
			log.Info("log level reloaded", zap.String("level", level.String()))
		}
	}
}

// newApp 按配置装配组件，出错时已创建的组件会被释放
func newApp(ctx context.Context, cfg *AppConfig, log logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	tp, err := tracing.NewProvider(ctx, &cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	})

	a.manager, err = realtime.NewManager(append(cfg.Realtime.options(), realtime.WithLogger(log))...)
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.manager.Shutdown(shutdownCtx)
	})

	a.engine = posrt.Default(
		posrt.WithMode(cfg.Server.Mode),
		posrt.WithServer(cfg.Server.ServerConfig),
		posrt.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		posrt.WithTrustedProxies(cfg.Server.TrustedProxies...),
		posrt.WithBanner(cfg.Server.Banner),
		posrt.WithLogger(log),
		posrt.WithBeforeShutdown(func(ctx context.Context) {
			if err := a.manager.Shutdown(ctx); err != nil {
				log.Warn("realtime shutdown incomplete", zap.Error(err))
			}
		}),
	)

	var srvOpts []server.Option
	srvOpts = append(srvOpts, server.WithLogger(log))

	if cfg.Cache != nil {
		c, err := cache.New(cfg.Cache)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = c.Close() })
		if cfg.Tracing.Enabled {
			c = cache.NewTracing(c)
		}
		srvOpts = append(srvOpts, server.WithIdempotencyCache(c))
	}

	if cfg.Database != nil {
		rec, err := a.setupAudit(cfg)
		if err != nil {
			return nil, err
		}
		srvOpts = append(srvOpts, server.WithAudit(rec))
	}

	srv := server.New(a.engine, a.manager, &cfg.Server.Routes, srvOpts...)
	a.onClose(srv.Close)

	var ingestOpts []ingest.HandlerOption
	if cfg.Ingest.Dedupe != nil {
		ingestOpts = append(ingestOpts, ingest.WithDeduper(ingest.NewDeduper(cfg.Ingest.Dedupe)))
	}
	handler := ingest.NewHandler(a.manager, log, ingestOpts...)
	if cfg.Ingest.Kafka != nil {
		src, err := ingest.NewKafkaSource(cfg.Ingest.Kafka, handler, log)
		if err != nil {
			return nil, err
		}
		a.sources = append(a.sources, src)
	}
	if cfg.Ingest.AMQP != nil {
		src, err := ingest.NewAMQPSource(cfg.Ingest.AMQP, handler, log)
		if err != nil {
			return nil, err
		}
		a.sources = append(a.sources, src)
	}

	return a, nil
}

// setupAudit 打开数据库、挂载审计订阅并注册清理任务
func (a *app) setupAudit(cfg *AppConfig) (*audit.Recorder, error) {
	db, err := orm.New(cfg.Database, a.log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = orm.Close(db) })

	rec, err := audit.NewRecorder(db, a.log)
	if err != nil {
		return nil, err
	}
	rec.Attach(a.manager)

	if cfg.Audit.Retention > 0 && cfg.Audit.PurgeSchedule != "" {
		c := cron.New(cron.WithSeconds())
		if _, err := audit.NewRetentionJob(rec, cfg.Audit.Retention).Schedule(c, cfg.Audit.PurgeSchedule); err != nil {
			return nil, err
		}
		c.Start()
		a.onClose(func() { <-c.Stop().Done() })
	}
	return rec, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// run 运行 HTTP 服务与消息队列消费，任一退出即整体退出
func (a *app) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range a.sources {
		g.Go(func() error { return src.Run(gctx) })
	}
	g.Go(func() error { return a.engine.RunContext(gctx) })
	return g.Wait()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
