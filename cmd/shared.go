package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/snapline/snapline/checkout"
	"github.com/snapline/snapline/logger"
	"github.com/snapline/snapline/merge"
	"github.com/snapline/snapline/model"
	"github.com/snapline/snapline/store"
	"github.com/snapline/snapline/workspace"
)

// sessionInfo is the user identity commands pass into the core.  The core
// never reads it from global state itself.
type sessionInfo struct {
	Username string
	Email    string
	Token    string
}

var (
	sessionMu     sync.Mutex
	sessionCached *sessionInfo
)

// currentSession loads the user identity lazily from the global config
func currentSession() sessionInfo {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionCached == nil {
		sessionCached = &sessionInfo{
			Username: viper.GetString("user.name"),
			Email:    viper.GetString("user.email"),
			Token:    viper.GetString("user.token"),
		}
	}
	return *sessionCached
}

// invalidateSession drops the cached identity so the next read reloads it.
// Auth sensitive paths call this first.
func invalidateSession() {
	sessionMu.Lock()
	sessionCached = nil
	sessionMu.Unlock()
}

// openWorkspace loads the workspace containing the current directory
func openWorkspace() (*workspace.Workspace, *store.Repo, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.Load(cwd)
	if err != nil {
		return nil, nil, exitOnNotAWorkspace(err)
	}
	repo, err := store.OpenRepo(ws.MetaPath())
	if err != nil {
		return nil, nil, err
	}
	return ws, repo, nil
}

// buildEngine wires the checkout engine over the workspace with the real
// hub importer, writer and prompter
func buildEngine(ws *workspace.Workspace, repo *store.Repo, verbose bool) *checkout.Engine {
	invalidateSession()
	session := currentSession()
	log := logger.New(verbose)
	importer := store.NewImporter(repo, store.NewHub(hub, session.Token), log)
	writer := workspace.NewWriter(ws, workspace.NoInstaller{}, log)
	return checkout.NewEngine(ws, repo, importer, writer, terminalPrompter{}, log)
}

// terminalPrompter asks on stdin which merge strategy to use
type terminalPrompter struct{}

func (terminalPrompter) PromptMergeStrategy() (merge.Strategy, error) {
	fmt.Fprint(fOut, "Merge conflicts found, choose a strategy [manual/ours/theirs]: ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return merge.StrategyNone, err
	}
	return merge.ParseStrategy(strings.TrimSpace(answer))
}

// laneUserInfo builds the lane log identity from the session
func laneUserInfo() model.UserInfo {
	s := currentSession()
	return model.UserInfo{Username: s.Username, Email: s.Email}
}
