package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/snapline/snapline/model"
)

var laneCreateForkFrom string

// Creates a new lane and switches the workspace onto it
var laneCreateCmd = &cobra.Command{
	Use:   "create [lane name]",
	Short: "Creates a new lane and makes it the active one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("No lane name specified")
		}
		if len(args) > 1 {
			return errors.New("Only one lane can be created at a time")
		}
		return laneCreate(args[0])
	},
}

func init() {
	laneCmd.AddCommand(laneCreateCmd)
	laneCreateCmd.Flags().StringVar(&laneCreateForkFrom, "fork-from", "",
		"Existing lane to seed the component heads from")
}

func laneCreate(name string) error {
	ws, repo, err := openWorkspace()
	if err != nil {
		return err
	}
	invalidateSession()

	scope := ws.DefaultScope()
	if existing, err := repo.Lane(scope, name); err != nil {
		return err
	} else if existing != nil {
		return errors.Errorf("lane '%s' already exists", name)
	}

	lane, err := model.CreateLane(name, scope, laneCreateForkFrom, laneUserInfo())
	if err != nil {
		return err
	}

	if laneCreateForkFrom != "" {
		forkScope, forkName := splitLaneArg(laneCreateForkFrom)
		if forkScope == "" {
			forkScope = scope
		}
		origin, err := repo.Lane(forkScope, forkName)
		if err != nil {
			return err
		}
		if origin == nil {
			return errors.Errorf("lane '%s' to fork from doesn't exist", laneCreateForkFrom)
		}
		for _, c := range origin.Components {
			lane.AddComponent(c)
		}
	}

	if err = repo.SaveLane(lane); err != nil {
		return err
	}
	if err = ws.SetCurrentLane(lane.LaneID()); err != nil {
		return err
	}
	fmt.Fprintf(fOut, "Lane '%s' created, the workspace is now on it\n", lane.LaneID())
	return nil
}

func splitLaneArg(arg string) (string, string) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '/' {
			return arg[:i], arg[i+1:]
		}
	}
	return "", arg
}
