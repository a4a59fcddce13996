package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tokmz/posrt"
	"github.com/tokmz/posrt/pkg/audit"
	"github.com/tokmz/posrt/pkg/config"
	"github.com/tokmz/posrt/pkg/orm"
)

func main() {
	cmd := &cli.Command{
		Name:    "posrt",
		Usage:   "POS realtime session and broadcast server",
		Version: posrt.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file path",
				Sources: cli.EnvVars("POSRT_CONFIG"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "validate the config file and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "print", Usage: "print the effective config as YAML, secrets masked"},
				},
				Action: check,
			},
			{
				Name:  "purge-audit",
				Usage: "delete broadcast audit records older than --older-than",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Value: 720 * time.Hour},
				},
				Action: purgeAudit,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serve 启动服务
func serve(ctx context.Context, cmd *cli.Command) error {
	var reload func(*config.Config)
	cm, cfg, err := loadConfig(cmd.String("config"), config.WithOnChange(func(c *config.Config) {
		if reload != nil {
			reload(c)
		}
	}))
	if err != nil {
		return err
	}
	defer cm.Close()

	log, err := cfg.Log.build()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reload = reloadLogLevel(log)
	cm.StartWatch()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

// check 校验配置
func check(_ context.Context, cmd *cli.Command) error {
	cm, cfg, err := loadConfig(cmd.Root().String("config"))
	if err != nil {
		return err
	}
	defer cm.Close()

	if _, err := cfg.Log.build(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := cfg.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if cfg.Cache != nil {
		if err := cfg.Cache.Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if cmd.Bool("print") {
		out, err := renderConfig(cm.AllSettings())
		if err != nil {
			return err
		}
		fmt.Print(string(out))
	}
	fmt.Printf("config ok: %s\n", cm.ConfigFileUsed())
	return nil
}

// purgeAudit 一次性清理审计记录
func purgeAudit(ctx context.Context, cmd *cli.Command) error {
	cm, cfg, err := loadConfig(cmd.Root().String("config"))
	if err != nil {
		return err
	}
	defer cm.Close()
	if cfg.Database == nil {
		return fmt.Errorf("database section is required")
	}

	log, err := cfg.Log.build()
	if err != nil {
		return err
	}
	db, err := orm.New(cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = orm.Close(db) }()

	rec, err := audit.NewRecorder(db, log)
	if err != nil {
		return err
	}
	n, err := rec.Purge(ctx, cmd.Duration("older-than"))
	if err != nil {
		return err
	}
	fmt.Printf("purged %d audit records\n", n)
	return nil
}
