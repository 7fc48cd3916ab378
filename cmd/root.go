package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/message"

	"github.com/snapline/snapline/checkout"
	"github.com/snapline/snapline/workspace"
)

var (
	cfgFile, hub string
	numFormat    *message.Printer

	// fOut is where command output lands; tests redirect it
	fOut io.Writer = os.Stdout
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "snapline",
	Short: "Component based version control",
	Long: `snapline is a component oriented version control system.

Each component carries its own content addressed history.  Lanes group
component heads into isolated working contexts, and checkout reconciles the
working copy with any version, three way merging local modifications.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command & sets flags appropriately.
// This is called by main.main().  It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		if errors.Is(err, checkout.ErrValidation) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	numFormat = message.NewPrinter(message.MatchLanguage("en"))

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.snapline/config.toml)")
	RootCmd.PersistentFlags().StringVar(&hub, "hub", "https://hub.snapline.dev",
		"Address of the snapline hub")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(filepath.Join(home, ".snapline"))
		viper.SetConfigName("config")
	}

	// a missing config file is fine, everything has a default
	_ = viper.ReadInConfig()

	if viper.IsSet("general.hub") {
		// a command line override still wins over this
		hub = viper.GetString("general.hub")
	}

	// --config is only known once the flags are parsed
	cobra.OnInitialize(func() {
		if cfgFile == "" {
			return
		}
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
		if viper.IsSet("general.hub") && !RootCmd.PersistentFlags().Changed("hub") {
			hub = viper.GetString("general.hub")
		}
	})
}

// exitOnNotAWorkspace turns the precondition failure into the standard
// message and exit
func exitOnNotAWorkspace(err error) error {
	if errors.Is(err, workspace.ErrNotAWorkspace) {
		return errors.New("The current directory is not inside a snapline workspace")
	}
	return err
}
