package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guseggert/osinthub/hub"
	"github.com/guseggert/osinthub/internal/files"
	"github.com/guseggert/osinthub/stream"
	"github.com/guseggert/osinthub/tool"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func buildLogger(ctx *cli.Context) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logger, err := zap.NewDevelopment(zap.IncreaseLevel(level))
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// loadTools reads the tool table from --config, or from the nearest osinthub.yaml, or falls back to the defaults.
func loadTools(ctx *cli.Context) (*tool.Table, error) {
	homeDir := ctx.String("home-dir")
	if homeDir == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home dir: %w", err)
		}
		homeDir = dir
	}
	configPath := ctx.String("config")
	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("finding working dir: %w", err)
		}
		configPath, err = files.FindUp(tool.ConfigFileName, wd)
		if err != nil {
			return nil, fmt.Errorf("searching for %s: %w", tool.ConfigFileName, err)
		}
	}
	return tool.Load(configPath, homeDir)
}

func newClient(ctx *cli.Context) (*hub.Client, error) {
	logger, err := buildLogger(ctx)
	if err != nil {
		return nil, err
	}
	return hub.NewClient(logger.Sugar(), ctx.String("addr")), nil
}

func serve(ctx *cli.Context) error {
	logger, err := buildLogger(ctx)
	if err != nil {
		return err
	}
	tools, err := loadTools(ctx)
	if err != nil {
		return fmt.Errorf("loading tools: %w", err)
	}

	h, err := hub.New(
		tools,
		hub.WithLogger(logger),
		hub.WithListenAddr(ctx.String("listen-addr")),
		hub.WithPublicDir(ctx.String("public-dir")),
		hub.WithKillGrace(ctx.Duration("kill-grace")),
	)
	if err != nil {
		return fmt.Errorf("building hub: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-sigCtx.Done()
		err := h.Stop()
		if err != nil {
			logger.Sugar().Debugf("error stopping hub: %s", err)
		}
	}()

	err = h.Run()
	// Run returns as soon as the listener closes; wait for Stop to reap scans and services.
	stop()
	<-stopped
	return err
}

func control(action hub.Action) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		id := ctx.Args().First()
		if id == "" {
			return fmt.Errorf("a tool id is required")
		}
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		state, err := c.Control(ctx.Context, id, action)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "%s: %s\n", id, state)
		return nil
	}
}

func main() {
	addrFlag := &cli.StringFlag{
		Name:  "addr",
		Usage: "The base URL of the hub.",
		Value: "http://127.0.0.1:3001",
	}
	app := &cli.App{
		Name:  "osinthub",
		Usage: "run and stream OSINT tools from one place",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "The minimum level to log at.",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the hub server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen-addr",
						Usage: "The address for the HTTP server to listen on.",
						Value: "0.0.0.0:3001",
					},
					&cli.StringFlag{
						Name:  "config",
						Usage: "Path to the tool table YAML file. Defaults to the nearest " + tool.ConfigFileName + ".",
					},
					&cli.StringFlag{
						Name:  "home-dir",
						Usage: "The directory the tools are installed under. Defaults to the user's home directory.",
					},
					&cli.StringFlag{
						Name:  "public-dir",
						Usage: "Directory of static UI files to serve.",
					},
					&cli.DurationFlag{
						Name:  "kill-grace",
						Usage: "How long a cancelled scan has to exit before it is killed.",
						Value: stream.DefaultKillGrace,
					},
				},
				Action: serve,
			},
			{
				Name:  "tools",
				Usage: "list the configured tools",
				Flags: []cli.Flag{addrFlag},
				Action: func(ctx *cli.Context) error {
					c, err := newClient(ctx)
					if err != nil {
						return err
					}
					descs, err := c.Tools(ctx.Context)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tKIND\tNAME\tDESCRIPTION")
					for _, d := range descs {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Kind, d.Name, d.Description)
					}
					return w.Flush()
				},
			},
			{
				Name:  "status",
				Usage: "show which services are running",
				Flags: []cli.Flag{addrFlag},
				Action: func(ctx *cli.Context) error {
					c, err := newClient(ctx)
					if err != nil {
						return err
					}
					statuses, err := c.Status(ctx.Context)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tSTATUS\tURL")
					for _, s := range statuses {
						fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Status, s.URL)
					}
					return w.Flush()
				},
			},
			{
				Name:      "start",
				Usage:     "start a service",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{addrFlag},
				Action:    control(hub.ActionStart),
			},
			{
				Name:      "stop",
				Usage:     "stop a service",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{addrFlag},
				Action:    control(hub.ActionStop),
			},
			{
				Name:      "run",
				Usage:     "run a CLI tool and stream its output",
				ArgsUsage: "<id> <target>",
				Flags: []cli.Flag{
					addrFlag,
					&cli.BoolFlag{
						Name:  "ws",
						Usage: "Stream over a WebSocket instead of Server-Sent Events.",
					},
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "How long to wait for the hub to come up.",
						Value: 5 * time.Second,
					},
				},
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 2 {
						return fmt.Errorf("expected <id> <target>, got %d args", ctx.NArg())
					}
					c, err := newClient(ctx)
					if err != nil {
						return err
					}
					waitCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration("wait"))
					defer cancel()
					err = c.WaitForServer(waitCtx)
					if err != nil {
						return fmt.Errorf("waiting for hub: %w", err)
					}

					// Interrupting disconnects, which kills the scan on the hub.
					runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
					defer stop()
					run := c.Run
					if ctx.Bool("ws") {
						run = c.RunWS
					}
					return run(runCtx, ctx.Args().Get(0), ctx.Args().Get(1), func(ev stream.Event) error {
						_, err := fmt.Fprint(ctx.App.Writer, ev.Text)
						return err
					})
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
