package cmd

import (
	"github.com/denis-ismailaj/wharf/internal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	v          = internal.NewViper()
	configFile string
	settings   internal.Settings

	// RootCmd is the root command for wharf.
	RootCmd = &cobra.Command{
		Use:               "wharf",
		Short:             "Starts the services of a compose-style descriptor in dependency order and supervises them.",
		Run:               root,
		PersistentPreRunE: loadSettings,
		SilenceUsage:      true,
	}
)

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Settings file (default ./wharf.yaml).")
	flags.StringP("file", "f", "docker-compose.yml", "Descriptor file.")
	flags.StringP("project", "p", "", "Project name (default: name of the descriptor's directory).")
	flags.String("log-level", "info", "Log level: debug, info, warn, error.")

	_ = v.BindPFlag("file", flags.Lookup("file"))
	_ = v.BindPFlag("project", flags.Lookup("project"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
}

func root(cmd *cobra.Command, _ []string) {
	_ = cmd.Help()
}

// loadSettings resolves flags, WHARF_* variables and the settings file before any command runs.
func loadSettings(*cobra.Command, []string) error {
	s, err := internal.LoadSettings(v, configFile)
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	settings = s
	return nil
}
