package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SNAPLINE_VERSION is the version of snapline being run
const SNAPLINE_VERSION = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Displays the version of snapline being run",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(fOut, "snapline version %s\n", SNAPLINE_VERSION)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
