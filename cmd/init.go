package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/snapline/snapline/workspace"
)

var initDefaultScope string

// Initializes a snapline workspace in the current directory
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes a snapline workspace in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return errors.New("init takes no arguments")
		}
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		if _, err = workspace.Init(cwd, initDefaultScope); err != nil {
			return err
		}
		fmt.Fprintf(fOut, "Initialized an empty snapline workspace in %s\n", cwd)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initDefaultScope, "default-scope", "",
		"Scope new components belong to by default")
}
