package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/snapline/snapline/checkout"
	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/ref"
)

var (
	checkoutAll           bool
	checkoutManual        bool
	checkoutOurs          bool
	checkoutTheirs        bool
	checkoutSkipInstall   bool
	checkoutWorkspaceOnly bool
	checkoutVerbose       bool
	checkoutReset         bool
)

// Switches the workspace components to another version
var checkoutCmd = &cobra.Command{
	Use:   "checkout [head|latest|reset|version] [component id...]",
	Short: "Switches components to a different version, merging local changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheckout(args)
	},
}

func init() {
	RootCmd.AddCommand(checkoutCmd)
	checkoutCmd.Flags().BoolVar(&checkoutAll, "all", false,
		"Check out all workspace components")
	checkoutCmd.Flags().BoolVar(&checkoutManual, "manual", false,
		"On conflicts, leave the conflict markers in place for manual resolution")
	checkoutCmd.Flags().BoolVar(&checkoutOurs, "ours", false,
		"On conflicts, keep the workspace side")
	checkoutCmd.Flags().BoolVar(&checkoutTheirs, "theirs", false,
		"On conflicts, adopt the incoming side")
	checkoutCmd.Flags().BoolVar(&checkoutSkipInstall, "skip-dep-install", false,
		"Do not install dependencies after writing")
	checkoutCmd.Flags().BoolVar(&checkoutWorkspaceOnly, "workspace-only", false,
		"With head, do not hydrate lane components missing from the workspace")
	checkoutCmd.Flags().BoolVarP(&checkoutVerbose, "verbose", "v", false,
		"Log what the engine decides per component")
	checkoutCmd.Flags().BoolVar(&checkoutReset, "reset", false,
		"Restore files from the model, discarding local changes")
}

func runCheckout(args []string) error {
	props, err := parseCheckoutArgs(args)
	if err != nil {
		return err
	}

	ws, repo, err := openWorkspace()
	if err != nil {
		return err
	}
	engine := buildEngine(ws, repo, props.Verbose)

	results, err := engine.Run(props)
	if err != nil {
		return err
	}
	printCheckoutResults(results)

	if len(results.HardFailures()) > 0 {
		return errors.New("some components could not be checked out")
	}
	return nil
}

func parseCheckoutArgs(args []string) (*checkout.Props, error) {
	if len(args) == 0 {
		return nil, errors.Wrap(checkout.ErrValidation,
			"a target is required: head, latest, reset or a version")
	}

	props := &checkout.Props{
		All:            checkoutAll,
		SkipDepInstall: checkoutSkipInstall,
		WorkspaceOnly:  checkoutWorkspaceOnly,
		Verbose:        checkoutVerbose,
	}

	switch args[0] {
	case "head":
		props.Target = checkout.TargetHead
	case "latest":
		props.Target = checkout.TargetLatest
	case "reset":
		props.Target = checkout.TargetReset
	default:
		props.Target = checkout.TargetVersion
		props.Version = args[0]
	}
	if checkoutReset {
		props.Target = checkout.TargetReset
		props.Version = ""
	}

	strategies := 0
	if checkoutManual {
		props.MergeStrategy = merge.StrategyManual
		strategies++
	}
	if checkoutOurs {
		props.MergeStrategy = merge.StrategyOurs
		strategies++
	}
	if checkoutTheirs {
		props.MergeStrategy = merge.StrategyTheirs
		strategies++
	}
	if strategies > 1 {
		return nil, errors.Wrap(checkout.ErrValidation,
			"--manual, --ours and --theirs are mutually exclusive")
	}

	for _, arg := range args[1:] {
		id, err := ref.ParseComponentID(arg)
		if err != nil {
			return nil, errors.Wrap(checkout.ErrValidation, err.Error())
		}
		if id.Version != "" {
			if props.VersionPerID == nil {
				props.VersionPerID = map[string]string{}
			}
			props.VersionPerID[id.FullName()] = id.Version
		}
		props.IDs = append(props.IDs, id.WithoutVersion())
	}
	return props, nil
}

func printCheckoutResults(results *checkout.Results) {
	for _, id := range results.Applied {
		fmt.Fprintf(fOut, "  * %s\n", id)
	}
	for _, id := range results.Removed {
		fmt.Fprintf(fOut, "  - %s (removed)\n", id.FullName())
	}
	for _, f := range results.Failed {
		marker := "!"
		if f.UnchangedLegitimately {
			marker = "."
		}
		fmt.Fprintf(fOut, "  %s %s: %s\n", marker, f.ID.FullName(), f.Reason)
	}
	if len(results.NewFromLane) > 0 {
		numFormat.Fprintf(fOut, "%d component(s) joined from the active lane\n",
			len(results.NewFromLane))
	}
	if results.LeftUnresolvedConflicts {
		fmt.Fprintln(fOut, "Conflict markers were left in place, resolve them and run 'snapline status'")
	}
	if results.InstallationError != nil {
		fmt.Fprintf(fOut, "Dependency installation failed: %v\n", results.InstallationError)
	}
	if results.CompilationError != nil {
		fmt.Fprintf(fOut, "Compilation failed: %v\n", results.CompilationError)
	}
	numFormat.Fprintf(fOut, "Checkout finished: %d applied, %d removed, %d skipped or failed\n",
		len(results.Applied), len(results.Removed), len(results.Failed))
}
