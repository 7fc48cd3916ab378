package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Shows the components of a lane
var laneShowCmd = &cobra.Command{
	Use:   "show [lane name]",
	Short: "Shows the component heads of a lane, defaulting to the active one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return errors.New("Only one lane can be shown at a time")
		}
		arg := ""
		if len(args) == 1 {
			arg = args[0]
		}
		return laneShow(arg)
	},
}

func init() {
	laneCmd.AddCommand(laneShowCmd)
}

func laneShow(arg string) error {
	ws, repo, err := openWorkspace()
	if err != nil {
		return err
	}
	if arg == "" {
		arg = ws.CurrentLane()
		if arg == "" {
			return errors.New("No lane name specified and the workspace is on main")
		}
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

	fmt.Fprintf(fOut, "lane %s (%s)\n", lane.LaneID(), lane.Hash.Short())
	if lane.ForkedFrom != "" {
		fmt.Fprintf(fOut, "forked from %s\n", lane.ForkedFrom)
	}
	if lane.Log.Username != "" {
		fmt.Fprintf(fOut, "created by %s <%s> on %s\n", lane.Log.Username, lane.Log.Email, lane.Log.Date)
	}
	for _, c := range lane.Components {
		marker := "  "
		if lane.ReadmeComponent != nil && lane.ReadmeComponent.SameWithoutVersion(c.ID) {
			marker = "R "
		}
		fmt.Fprintf(fOut, "%s%s @ %s\n", marker, c.ID.FullName(), c.Head.Short())
	}
	return nil
}
