package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/gambit/internal/match"
	"github.com/loykin/gambit/internal/metrics"
	"github.com/loykin/gambit/internal/server"
	"github.com/loykin/gambit/internal/termination"
)

func createMatchCommand(globalFlags *GlobalFlags, flags *MatchFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Play one game between two engines",
		Long: `Play one game between two engines. Each side is either the name of an
engine from the config file, a bundled engine name with --bundled, or a path
to an executable.

Examples:
  gambit match --white /usr/games/gnuchess --black /usr/games/gnuchess
  gambit match --bundled --white gnuchess --black fruit --max-plies 80`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMatch(cmd, globalFlags, flags)
		},
	}
	cmd.Flags().StringVar(&flags.White, "white", "", "engine playing white")
	cmd.Flags().StringVar(&flags.Black, "black", "", "engine playing black")
	cmd.Flags().BoolVar(&flags.Bundled, "bundled", false, "resolve engine names under <appdir>/engine/<name>/")
	cmd.Flags().IntVar(&flags.MaxPlies, "max-plies", -1, "adjudicate after this many plies (0 = no limit, default from config)")
	_ = cmd.MarkFlagRequired("white")
	_ = cmd.MarkFlagRequired("black")
	return cmd
}

func runMatch(cmd *cobra.Command, globalFlags *GlobalFlags, flags *MatchFlags) error {
	a, err := newApp(globalFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	white, err := a.engineConfig(flags.White, flags.Bundled)
	if err != nil {
		return fmt.Errorf("white: %w", err)
	}
	black, err := a.engineConfig(flags.Black, flags.Bundled)
	if err != nil {
		return fmt.Errorf("black: %w", err)
	}
	// Names key metrics, statuses and stderr logs.
	if white.Name == black.Name {
		white.Name += "-white"
		black.Name += "-black"
	}

	cfg := match.Config{PollInterval: a.cfg.Match.PollInterval, MaxPlies: a.cfg.Match.MaxPlies}
	if flags.MaxPlies >= 0 {
		cfg.MaxPlies = flags.MaxPlies
	}

	mgr := a.newManager()
	termination.Install(mgr, termination.Options{IgnoreUserSignals: a.cfg.Match.IgnoreUserSignals, Logger: a.log})
	defer termination.Uninstall()

	runner := match.New(mgr, a.seat(white), a.seat(black), cfg, match.WithLogger(a.log))
	defer runner.Close()
	defer termination.Recover()

	ctx := cmd.Context()
	if a.cfg.Metrics.Enabled {
		sampler := metrics.NewSampler(a.cfg.Metrics.SampleInterval, runner.PIDs)
		sampler.Start(ctx)
		defer sampler.Stop()
	}
	if a.cfg.Server.Listen != "" {
		var ropts []server.RouterOption
		if a.cfg.Metrics.Enabled {
			ropts = append(ropts, server.WithMetrics(metrics.Handler()))
		}
		srv := server.NewServer(a.cfg.Server.Listen, server.NewRouter(runner.Statuses, a.cfg.Server.BasePath, ropts...))
		defer func() { _ = srv.Close() }()
		a.log.Info("http server listening", slog.String("addr", a.cfg.Server.Listen))
	}

	a.log.Info("match starting", slog.String("white", white.Name), slog.String("black", black.Name))
	out, err := runner.Play(ctx)
	if len(out.Moves) > 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "moves: %s\n", strings.Join(out.Moves, " "))
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "result: %s\n", describe(out))
	return nil
}
