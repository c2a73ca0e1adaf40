package cmd

import (
	"fmt"

	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [topology]",
	Short: "Checks a topology file and prints its adjacencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topo, err := state.ReadTopology(args[0])
		if err != nil {
			return err
		}
		loc := state.DefaultLocator()
		for id := range topo {
			if _, err := topo.Neighbours(id, loc); err != nil {
				return err
			}
		}

		fmt.Printf("Topology is valid: %d routers, %d links\n", len(topo), len(topo.Edges()))
		for _, e := range topo.Edges() {
			fmt.Printf("\t%s <-> %s\n", e.V1, e.V2)
		}
		for _, e := range topo.Asymmetric() {
			fmt.Printf("Warning: %s lists %s as a neighbour, but %s does not list %s\n", e.V1, e.V2, e.V2, e.V1)
		}
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
