package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/snapline/snapline/model"
)

// Switches the workspace onto a lane, or back to main
var laneSwitchCmd = &cobra.Command{
	Use:   "switch [lane name]",
	Short: "Switches the workspace onto a lane, or back to main",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("No lane name specified, use 'main' to leave the current lane")
		}
		if len(args) > 1 {
			return errors.New("Only one lane can be switched to at a time")
		}
		return laneSwitch(args[0])
	},
}

func init() {
	laneCmd.AddCommand(laneSwitchCmd)
}

func laneSwitch(arg string) error {
	ws, repo, err := openWorkspace()
	if err != nil {
		return err
	}

	if arg == model.DefaultLaneName {
		// leaving a lane makes its components available on main again
		if current := ws.CurrentLane(); current != "" {
			scope, name := splitLaneArg(current)
			lane, err := repo.Lane(scope, name)
			if err != nil {
				return err
			}
			if lane != nil {
				ws.Bitmap.MakeComponentsAvailableOnMain(lane.ComponentIDs())
				if err = ws.Bitmap.Save(); err != nil {
					return err
				}
			}
		}
		if err = ws.SetCurrentLane(""); err != nil {
			return err
		}
		fmt.Fprintln(fOut, "The workspace is back on main")
		return nil
	}

	scope, name := splitLaneArg(arg)
	if scope == "" {
		scope = ws.DefaultScope()
	}
	lane, err := repo.Lane(scope, name)
	if err != nil {
		return err
	}
	if lane == nil {
		return errors.Errorf("lane '%s' doesn't exist", arg)
	}
	if err = ws.SetCurrentLane(lane.LaneID()); err != nil {
		return err
	}
	fmt.Fprintf(fOut, "The workspace is now on lane '%s', run 'snapline checkout head' to sync files\n",
		lane.LaneID())
	return nil
}
