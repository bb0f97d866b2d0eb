package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/batata-io/batata/config"
)

const (
	ServiceName = "batata"
	ServiceNamespace = "batata"
)

var (
	version = "0.0.0"
	commit = "hash"
	commitDate = time.Now().String()
	branch = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name: ServiceName,
		Usage: "Nacos/Consul-compatible control plane node",
		Commands: []*cli.Command{
			serverCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name: "server",
		Aliases: []string{"s"},
		Usage: "Run the node's gRPC session server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name: "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, v, err := config.Load(c.String("config_file"))
			if err != nil {
				return err
			}

			fxApp := NewApp(cfg)

			if c.String("config_file") != "" {
				config.Watch(v, func(*config.Config) {
					slog.Warn("configuration file changed on disk; restart the node to apply it")
				})
			}

			if err := fxApp.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("shutting down")
			return fxApp.Stop(context.Background())
		},
	}
}
