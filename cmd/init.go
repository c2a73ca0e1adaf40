package cmd

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"

	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var newCmd = &cobra.Command{
	Use:   "new [id] [topology]",
	Short: "Create a router configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid router id %q", args[0])
		}
		port, _ := cmd.Flags().GetUint16("base-port")
		host, err := netip.ParseAddr(cmd.Flag("host").Value.String())
		if err != nil {
			return fmt.Errorf("invalid host: %w", err)
		}

		cfg := state.RouterCfg{
			Id:       state.RouterId(id),
			Topology: args[1],
			Host:     host,
			BasePort: port,
		}
		state.ExpandRouterConfig(&cfg)
		cfg.LogPath = fmt.Sprintf("log/%s.txt", cfg.Id)

		outPath := cmd.Flag("output").Value.String()
		if outPath == "" {
			outPath = fmt.Sprintf("%s.yaml", cfg.Id)
		}
		return writeRouterConfig(&cfg, outPath)
	},
	GroupID: "init",
}

func writeRouterConfig(cfg *state.RouterCfg, path string) error {
	err := state.RouterConfigValidator(cfg)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", "", "router config output file path, R<id>.yaml by default")
	newCmd.Flags().String("host", state.DefaultLocator().Host.String(), "host every router listens on")
	newCmd.Flags().Uint16P("base-port", "p", state.DefaultBasePort, "router i listens on base-port + i")
}
