package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/gambit/internal/engine"
	"github.com/loykin/gambit/internal/termination"
)

func createCheckCommand(globalFlags *GlobalFlags, flags *CheckFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Start an engine, verify it stays alive and stop it",
		Long: `Start an engine, let it settle, then stop it again. Useful to verify an
engine path and its working directory before a match.

Examples:
  gambit check --engine /usr/games/gnuchess
  gambit check --bundled --engine fruit --wait 2s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, globalFlags, flags)
		},
	}
	cmd.Flags().StringVar(&flags.Engine, "engine", "", "engine name or path")
	cmd.Flags().BoolVar(&flags.Bundled, "bundled", false, "resolve the engine name under <appdir>/engine/<name>/")
	cmd.Flags().StringVar(&flags.Wait, "wait", "500ms", "how long the engine must stay alive")
	_ = cmd.MarkFlagRequired("engine")
	return cmd
}

func runCheck(cmd *cobra.Command, globalFlags *GlobalFlags, flags *CheckFlags) error {
	wait, err := time.ParseDuration(flags.Wait)
	if err != nil || wait < 0 {
		return fmt.Errorf("invalid --wait %q", flags.Wait)
	}
	a, err := newApp(globalFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	ec, err := a.engineConfig(flags.Engine, flags.Bundled)
	if err != nil {
		return err
	}

	mgr := a.newManager()
	termination.Install(mgr, termination.Options{IgnoreUserSignals: a.cfg.Match.IgnoreUserSignals, Logger: a.log})
	defer termination.Uninstall()

	seat := a.seat(ec)
	eng := engine.New(mgr, seat.Driver, nil, seat.Options...)
	defer eng.Destroy()
	defer termination.Recover()

	if err := eng.Start(engine.SideWhite); err != nil {
		return err
	}
	pid := eng.PID()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		// Output is drained so a chatty engine does not block on its pipe.
		if _, err := eng.Poll(); err != nil {
			return err
		}
		time.Sleep(a.cfg.Match.PollInterval)
	}
	if err := eng.Shutdown(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (pid %d) started and stopped\n", ec.Name, pid)
	return nil
}
