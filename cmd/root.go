package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dvr",
	Short: "Distance-vector overlay router",
	Long: `dvr runs one router of a UDP overlay network.
Routers exchange distance vectors with their direct neighbours every broadcast period and forward
data packets hop by hop along the shortest known path.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Configure a network",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "dvr",
		Title: "Router Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "router config file (yaml)")
}
