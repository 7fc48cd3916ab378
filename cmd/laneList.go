package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapline/snapline/history"
)

var (
	laneListMerged    bool
	laneListNotMerged bool
)

// Lists the lanes known to the workspace
var laneListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists lanes, optionally filtered by merge state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return laneList()
	},
}

func init() {
	laneCmd.AddCommand(laneListCmd)
	laneListCmd.Flags().BoolVar(&laneListMerged, "merged", false,
		"Only lanes fully merged into main")
	laneListCmd.Flags().BoolVar(&laneListNotMerged, "not-merged", false,
		"Only lanes with unmerged components")
}

func laneList() error {
	ws, repo, err := openWorkspace()
	if err != nil {
		return err
	}
	lanes, err := repo.Lanes()
	if err != nil {
		return err
	}
	if len(lanes) == 0 {
		fmt.Fprintln(fOut, "No lanes")
		return nil
	}
	active := ws.CurrentLane()
	for _, lane := range lanes {
		merged, err := history.IsLaneFullyMerged(lane, repo)
		if err != nil {
			return err
		}
		if laneListMerged && !merged {
			continue
		}
		if laneListNotMerged && merged {
			continue
		}
		marker := " "
		if lane.LaneID() == active {
			marker = "*"
		}
		state := "not merged"
		if merged {
			state = "merged"
		}
		numFormat.Fprintf(fOut, "%s %s  %d component(s)  %s\n",
			marker, lane.LaneID(), len(lane.Components), state)
	}
	return nil
}
