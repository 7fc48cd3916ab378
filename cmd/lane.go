package cmd

import (
	"github.com/spf13/cobra"
)

// Parent command for lane operations
var laneCmd = &cobra.Command{
	Use:   "lane",
	Short: "Manage lanes, isolated working contexts of component heads",
}

func init() {
	RootCmd.AddCommand(laneCmd)
}
