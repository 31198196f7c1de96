package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/chess-coach/internal/adapter/coachpresenter"
	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/coachbuilder"
	"github.com/park285/chess-coach/internal/config"
	"github.com/park285/chess-coach/internal/obslog"
	"github.com/park285/chess-coach/internal/service/coach"
	"github.com/park285/chess-coach/pkg/coachdto"
)

type rootFlags struct {
	engine  string
	preset  string
	fen     string
	envFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "chess-coach",
		Short:         "Engine-grounded chess position coach",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd.Context(), flags, func(ctx context.Context, deps *coachbuilder.Deps, sess *board.Session) error {
				r := &repl{
					svc:       deps.Service,
					narrator:  deps.Narrator,
					store:     deps.Store,
					pres:      coachpresenter.NewPresenter(out, deps.Catalog),
					formatter: coachpresenter.NewFormatter(),
					logger:    obslog.L().Named("repl"),
					sess:      sess,
				}
				r.run(ctx, in)
				return nil
			})
		},
	}
	root.SetOut(out)
	pf := root.PersistentFlags()
	pf.StringVar(&flags.engine, "engine", "", "path to a UCI engine binary (overrides STOCKFISH_PATH)")
	pf.StringVar(&flags.preset, "preset", "", "analysis preset name (overrides ANALYSIS_PRESET)")
	pf.StringVar(&flags.fen, "fen", "", "starting position in FEN")
	pf.StringVar(&flags.envFile, "env", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newAnalyzeCommand(flags, out))
	return root
}

func newAnalyzeCommand(flags *rootFlags, out io.Writer) *cobra.Command {
	var move string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one position and print the facts bundle as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(cmd.Context(), flags, func(ctx context.Context, deps *coachbuilder.Deps, sess *board.Session) error {
				var (
					facts any
					err   error
				)
				if strings.TrimSpace(move) != "" {
					facts, err = deps.Service.CompareMove(ctx, sess, move)
				} else {
					facts, err = deps.Service.AnalyzePosition(ctx, sess)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err != nil {
					_ = enc.Encode(struct {
						Error coachdto.DomainError `json:"error"`
					}{coach.DomainErrorOf(err)})
					return err
				}
				return enc.Encode(facts)
			})
		},
	}
	cmd.Flags().StringVar(&move, "move", "", "compare this move against the engine's choice")
	return cmd
}

// withDeps loads configuration, wires the application, starts the engine and
// runs fn with a session at the requested start position.
func withDeps(ctx context.Context, flags *rootFlags, fn func(context.Context, *coachbuilder.Deps, *board.Session) error) error {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return err
	}
	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if v := strings.TrimSpace(flags.engine); v != "" {
		cfg.StockfishPath = v
	}
	if v := strings.TrimSpace(flags.preset); v != "" {
		cfg.AnalysisPreset = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	start := board.Start()
	if v := strings.TrimSpace(flags.fen); v != "" {
		if start, err = board.FromFEN(v); err != nil {
			return fmt.Errorf("invalid --fen: %w", err)
		}
	}

	deps, err := coachbuilder.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := deps.Close(); cerr != nil {
			logger.Warn("shutdown_close_failed", zap.Error(cerr))
		}
	}()
	if err := deps.Engine.Start(ctx); err != nil {
		return err
	}
	logger.Info("coach_started",
		zap.String("engine", cfg.StockfishPath),
		zap.String("preset", deps.Preset.Name),
		zap.Bool("session_store", deps.Store != nil),
	)
	return fn(ctx, deps, board.NewSession(start))
}
