package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands
type GlobalFlags struct {
	ConfigPath string
	AppDir     string
	LogLevel   string
}

// MatchFlags holds flags for the match command
type MatchFlags struct {
	White    string
	Black    string
	Bundled  bool
	MaxPlies int
}

// CheckFlags holds flags for the check command
type CheckFlags struct {
	Engine  string
	Bundled bool
	Wait    string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createMatchCommand(globalFlags, &MatchFlags{}),
		createCheckCommand(globalFlags, &CheckFlags{}),
		createVersionCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "gambit",
		Short: "Chess engine supervisor",
		Long: `Gambit starts chess engines that speak the xboard protocol, supervises
their processes and plays them against each other.

Examples:
  gambit match --white /usr/games/gnuchess --black /usr/local/bin/crafty
  gambit match --config gambit.toml --white stockfish --black fruit
  gambit check --engine /usr/games/gnuchess`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.AppDir, "appdir", "", "application directory holding bundled engines (default: executable directory)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gambit version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gambit %s\n", version)
		},
	}
}
