package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [id] [topology]",
	Short: "Run a router",
	Long: `This will run router <id> of the network described by the topology file, listening on
host:base_port+id. Arguments and flags override the values of the config file.

With --static-routes, the routing table is loaded from a file of "<dest> <next hop> <metric>"
lines and the router only forwards: no distance vectors are sent or accepted, and routes never
age out. The topology is optional in this mode.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &state.RouterCfg{}
		if configPath != "" {
			var err error
			cfg, err = core.ReadRouterConfig(configPath)
			if err != nil {
				return err
			}
		}
		if len(args) > 0 {
			id, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return fmt.Errorf("invalid router id %q", args[0])
			}
			cfg.Id = state.RouterId(id)
		}
		if len(args) > 1 {
			cfg.Topology = args[1]
		}

		flags := cmd.Flags()
		if flags.Changed("static-routes") {
			cfg.StaticRoutes, _ = flags.GetString("static-routes")
		}
		if cfg.Topology == "" && cfg.StaticRoutes == "" {
			return fmt.Errorf("no topology file given")
		}

		if flags.Changed("no-split-horizon") {
			cfg.NoSplitHorizon, _ = flags.GetBool("no-split-horizon")
		}
		if flags.Changed("allow-source-mismatch") {
			cfg.AllowSourceMismatch, _ = flags.GetBool("allow-source-mismatch")
		}
		if flags.Changed("debug") {
			cfg.DebugAddr, _ = flags.GetString("debug")
		}
		if flags.Changed("log-path") {
			cfg.LogPath, _ = flags.GetString("log-path")
		} else if cfg.LogPath == "" {
			cfg.LogPath = fmt.Sprintf("log/%s.txt", cfg.Id)
		}

		level := slog.LevelInfo
		if ok, _ := flags.GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		noConsole, _ := flags.GetBool("no-console")

		return core.Start(*cfg, level, !noConsole)
	},
	GroupID: "dvr",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output, logs every distance vector and route change")
	runCmd.Flags().BoolP("no-split-horizon", "s", false, "Advertise the full routing table to every neighbour")
	runCmd.Flags().Bool("allow-source-mismatch", false, "Accept distance vectors whose udp source is not the sender's locator")
	runCmd.Flags().String("static-routes", "", "Forward over the fixed routing table in this file instead of running the protocol")
	runCmd.Flags().String("log-path", "", "Log file, log/R<id>.txt by default")
	runCmd.Flags().String("debug", "", "Serve /debug/metrics and /debug/vars on this address")
	runCmd.Flags().Bool("no-console", false, "Do not read commands from stdin")
}
