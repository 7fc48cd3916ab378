package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapline/snapline/history"
	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/ref"
	"github.com/snapline/snapline/store"
	"github.com/snapline/snapline/workspace"
)

// Displays whether components have been modified since their last version
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Displays the state of each workspace component",
	RunE: func(cmd *cobra.Command, args []string) error {
		return status(args)
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func status(args []string) error {
	ws, repo, err := openWorkspace()
	if err != nil {
		return err
	}

	entries := ws.Bitmap.All()
	if len(entries) == 0 {
		fmt.Fprintln(fOut, "No components are tracked in this workspace")
		return nil
	}

	for _, entry := range entries {
		state, err := componentState(ws, repo, entry)
		if err != nil {
			return err
		}
		fmt.Fprintf(fOut, "  * %s@%s: %s\n", entry.ID.FullName(), entry.Version, state)
	}
	if lane := ws.CurrentLane(); lane != "" {
		fmt.Fprintf(fOut, "On lane '%s'\n", lane)
	}
	return nil
}

func componentState(ws *workspace.Workspace, repo *store.Repo, entry *workspace.BitmapEntry) (string, error) {
	if entry.DuringMerge {
		return "during merge, resolve the conflicts", nil
	}
	if entry.Version == "" {
		return "new", nil
	}
	m, err := repo.ModelComponent(entry.ID.Scope, entry.ID.Name)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "unknown to the local scope", nil
	}
	hist, err := repo.VersionHistory(entry.ID.Scope, entry.ID.Name)
	if err != nil {
		return "", err
	}
	if history.IsMergePending(hist, m.Head, m.RemoteHead) {
		return "merge pending with the remote head", nil
	}

	currentRef, ok := m.ResolveVersion(entry.Version)
	if !ok || !repo.Objects.Has(currentRef) {
		return "version missing locally", nil
	}
	modified, err := isEntryModified(ws, repo, entry, currentRef)
	if err != nil {
		return "", err
	}
	if modified {
		return "modified", nil
	}
	return "unchanged", nil
}

func isEntryModified(ws *workspace.Workspace, repo *store.Repo, entry *workspace.BitmapEntry, currentRef ref.Ref) (bool, error) {
	v, err := repo.Version(currentRef)
	if err != nil {
		return false, err
	}
	tree, err := repo.FileTree(v.Files)
	if err != nil {
		return false, err
	}
	onDisk, err := ws.ComponentFilePaths(entry.ID)
	if err != nil {
		return false, err
	}
	diskSet := map[string]bool{}
	for _, p := range onDisk {
		diskSet[p] = true
	}
	for _, f := range tree.Files {
		data, ok, err := ws.ReadComponentFile(entry.ID, f.RelativePath)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		blobHash, err := model.HashOf(&model.Source{Contents: data})
		if err != nil {
			return false, err
		}
		if blobHash != f.Blob {
			return true, nil
		}
		delete(diskSet, f.RelativePath)
	}
	return len(diskSet) > 0, nil
}
