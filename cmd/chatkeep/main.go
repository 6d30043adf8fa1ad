package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/chatkeep/internal/config"
	"github.com/stupiduntilnot/chatkeep/internal/history"
	"github.com/stupiduntilnot/chatkeep/internal/inference"
	"github.com/stupiduntilnot/chatkeep/internal/logging"
	"github.com/stupiduntilnot/chatkeep/internal/render"
	"github.com/stupiduntilnot/chatkeep/internal/retention"
	"github.com/stupiduntilnot/chatkeep/internal/session"
	"github.com/stupiduntilnot/chatkeep/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "[chatkeep] %v\n", err)
		os.Exit(1)
	}
}

// app holds everything a command needs. It is populated by the root
// command's pre-run hook and torn down by close.
type app struct {
	in  io.Reader
	out io.Writer

	dbPath  string
	verbose bool

	cfg       config.Config
	logger    *zap.Logger
	store     *store.Store
	projector *history.Projector
	endpoint  *inference.HTTPClient
	answerer  inference.Answerer
	renderer  render.Renderer
	session   *session.Session
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{in: in, out: out}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "chatkeep",
		Short: "Terminal chat client with a bounded local history",
		Long: `chatkeep relays your questions to a remote model and keeps the
conversation in a local SQLite file. Only the newest turns are kept.

Run without arguments to start the interactive chat.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to the history database (overrides CHATKEEP_DB_PATH)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newHistoryCmd(a),
		newTranscriptCmd(a),
		newClearCmd(a),
		newPingCmd(a),
		newExportCmd(a),
		newStatsCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	a.cfg = cfg

	logger, err := logging.New(a.verbose, false)
	if err != nil {
		return err
	}
	a.logger = logger

	a.store = store.New(cfg.DBPath,
		store.WithLogger(logger),
		store.WithRetention(retention.Policy{Cap: cfg.RetentionCap}),
	)
	if err := a.store.Initialize(ctx); err != nil {
		logger.Warn("history storage unavailable, turns will not be saved",
			zap.String("path", cfg.DBPath), zap.Error(err))
	}
	a.projector = history.NewProjector(a.store, logger, history.WithWindow(cfg.HistoryWindow))

	answerer, err := a.newAnswerer(ctx)
	if err != nil {
		return err
	}
	a.answerer = inference.NewBreaker(answerer, cfg.BreakerThreshold,
		time.Duration(cfg.BreakerCooldownSeconds)*time.Second, logger)

	renderer, err := render.NewTerminal(cfg.RenderStyle, cfg.WordWrap)
	if err != nil {
		return err
	}
	a.renderer = renderer

	a.session = session.New(a.store, a.projector, a.answerer,
		session.WithLogger(logger),
		session.WithOutput(renderer, a.out),
		session.WithErrorPrefix(cfg.ErrorPrefix),
	)
	return nil
}

func (a *app) newAnswerer(ctx context.Context) (inference.Answerer, error) {
	timeout := time.Duration(a.cfg.TimeoutSeconds) * time.Second
	switch a.cfg.Provider {
	case config.ProviderGemini:
		client, err := inference.NewGeminiClient(ctx, inference.GeminiConfig{
			APIKey:       a.cfg.GeminiAPIKey,
			Model:        a.cfg.GeminiModel,
			SystemPrompt: a.cfg.SystemPrompt,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to init model provider: %w", err)
		}
		return client, nil
	case config.ProviderDummy:
		scripted, err := inference.NewScripted(a.cfg.DummyScript)
		if err != nil {
			return nil, fmt.Errorf("failed to init model provider: %w", err)
		}
		return scripted, nil
	default:
		a.endpoint = inference.NewHTTPClient(a.cfg.EndpointURL, timeout, a.logger)
		return a.endpoint, nil
	}
}

func (a *app) close() {
	if a.endpoint != nil {
		_ = a.endpoint.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
