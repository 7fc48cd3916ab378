package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/snapline/snapline/history"
)

var laneRemoveForce *bool

// Removes a lane
var laneRemoveCmd = &cobra.Command{
	Use:   "remove [lane name]",
	Short: "Removes a lane",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("No lane name specified")
		}
		if len(args) > 1 {
			return errors.New("Only one lane can be removed at a time")
		}
		return laneRemove(args[0])
	},
}

func init() {
	laneCmd.AddCommand(laneRemoveCmd)
	laneRemoveForce = laneRemoveCmd.Flags().BoolP("force", "f", false,
		"Remove the lane even when it has unmerged components")
}

func laneRemove(arg string) error {
	ws, repo, err := openWorkspace()
	if err != nil {
		return err
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
	if lane.LaneID() == ws.CurrentLane() {
		return errors.Errorf("lane '%s' is the active lane, switch away from it first", arg)
	}

	if !*laneRemoveForce {
		unmerged, err := history.UnmergedLaneComponents(lane, repo)
		if err != nil {
			return err
		}
		if len(unmerged) > 0 {
			e := fmt.Sprintf("lane '%s' has unmerged components, use --force to remove it anyway:\n", arg)
			for _, id := range unmerged {
				e += fmt.Sprintf("  * %s\n", id.FullName())
			}
			return errors.New(e)
		}
	}

	if _, err = repo.RemoveLane(scope, name); err != nil {
		return err
	}
	fmt.Fprintf(fOut, "Lane '%s' removed\n", arg)
	return nil
}
