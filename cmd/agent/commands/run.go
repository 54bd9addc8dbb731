package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"kite-agent/lib/agent"
	"kite-agent/lib/configutil"
	"kite-agent/lib/scrapers/authserver"
	"kite-agent/lib/serviceutil"
	"kite-agent/lib/session"
	"kite-agent/lib/telemetry"
	"kite-agent/services/relay"
)

type Config struct {
	// Name identifies this agent to the server.
	Name string `json:"name"`
	// Server is the host:port the agent dials out to.
	Server string `json:"server"`
	// Connections is how many parallel links to keep, default 4.
	Connections int `json:"connections"`
	// Db is the session database path, default "kite.db".
	Db string `json:"db"`
	// Proxy optionally routes portal traffic through an http proxy.
	Proxy string `json:"proxy"`
}

var debug bool

func init() {
	runCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the server and start answering requests.",
	Run: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(debug)

		config, err := configutil.ReadConfig[Config]("kite.json5")
		if err != nil && !os.IsNotExist(err) {
			serviceutil.Fatal("failed to read config", err)
		}
		if config.Name == "" || config.Server == "" {
			slog.Error("kite.json5 must set at least `name` and `server`")
			os.Exit(1)
		}
		if config.Connections < 1 {
			config.Connections = 4
		}
		if config.Db == "" {
			config.Db = "kite.db"
		}

		ctx := cmd.Context()
		t, err := telemetry.SetupFromEnv(ctx, config.Name)
		if err == nil {
			defer t.Shutdown(context.Background())
		} else {
			slog.Info("telemetry disabled", "reason", err)
		}
		telemetry.InstrumentPerfStats(ctx)

		store, err := session.Open(config.Db)
		if err != nil {
			serviceutil.Fatal("failed to open session database", err)
		}
		defer store.Close()

		service := relay.NewService(config.Name, store, authserver.TesseractSolver{})
		if config.Proxy != "" {
			service.SetProxy(config.Proxy)
		}
		slog.Info("starting agent",
			"name", config.Name,
			"server", config.Server,
			"connections", config.Connections)

		agent.New(config.Name, config.Server, config.Connections, service).Run(ctx)
	},
}
