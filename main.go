package main

import (
	"context"
	"os"

	"github.com/paularlott/cli"
	"github.com/paularlott/cli/env"

	"github.com/martinsuchenak/gwconsole/cmd/auth"
	"github.com/martinsuchenak/gwconsole/cmd/gateway"
	"github.com/martinsuchenak/gwconsole/cmd/server"
	"github.com/martinsuchenak/gwconsole/internal/app"
	"github.com/martinsuchenak/gwconsole/internal/config"
	"github.com/martinsuchenak/gwconsole/internal/log"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists
	env.Load()

	log.Configure("info", "console")
	app.Version = version

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:         "log-level",
			Usage:        "Log level (trace, debug, info, warn, error)",
			DefaultValue: "info",
			EnvVars:      []string{"GWC_LOG_LEVEL"},
			Global:       true,
		},
		&cli.StringFlag{
			Name:         "log-format",
			Usage:        "Log format (console, json)",
			DefaultValue: "console",
			EnvVars:      []string{"GWC_LOG_FORMAT"},
			Global:       true,
		},
	}
	flags = append(flags, config.GetFlags()...)

	commands := auth.Commands()
	commands = append(commands,
		&cli.Command{
			Name:        "gateway",
			Usage:       "Gateway commands",
			Description: "List, inspect, clone and publish security gateways",
			Commands:    gateway.Commands(),
		},
		server.Command(),
	)

	rootCmd := &cli.Command{
		Name:        "gwconsole",
		Version:     version + " (" + commit + ", " + date + ")",
		Usage:       "Security management console for gateways",
		Description: "Log in to a security management server, browse gateways and clone them from the command line, an HTTP API or MCP",
		Flags:       flags,
		PreRun: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			log.Configure(cmd.GetString("log-level"), cmd.GetString("log-format"))
			return ctx, nil
		},
		Commands: commands,
	}

	if err := rootCmd.Execute(context.Background()); err != nil {
		log.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
