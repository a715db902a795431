package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tgienger/stmbot/internal/bot"
	"github.com/tgienger/stmbot/internal/config"
	"github.com/tgienger/stmbot/internal/db"
	"github.com/tgienger/stmbot/internal/dialogue"
	"github.com/tgienger/stmbot/internal/gateway"
	"github.com/tgienger/stmbot/internal/logging"
	"github.com/tgienger/stmbot/internal/models"
	"github.com/tgienger/stmbot/internal/ui"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	// Global flags
	configPath string
	dbPath     string
	verbose    bool

	// chat / serve flags
	owner  int64
	listen string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stmbot",
	Short: "Project and task manager you talk to",
	Long: `stmbot keeps projects and tasks per user and is driven entirely by
menus and short text replies.

Run without arguments to start the terminal chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		if configPath == "" {
			if configPath, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}

		// the terminal chat owns the screen, so it always logs to a file
		if (!cmd.HasParent() || cmd.Name() == "chat") && cfg.Log.File == "" {
			if cfg.Log.File, err = logging.DefaultFile(); err != nil {
				return err
			}
		}
		logger, err = logging.New(cfg.Log, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the bot in the terminal",
	RunE:  runChat,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the bot to websocket clients",
	Long: `Serves the bot on /ws?owner=<id>. Every frame is one JSON message:
  {"type":"start"} | {"type":"text","text":"...","ref":"..."} | {"type":"interaction","token":"...","ref":"..."}`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stmbot %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/stmbot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.Flags().Int64Var(&owner, "owner", 0, "chat as this user id (default from config)")
	chatCmd.Flags().Int64Var(&owner, "owner", 0, "chat as this user id (default from config)")
	serveCmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")

	rootCmd.AddCommand(chatCmd, serveCmd, versionCmd)
}

// deps is the wiring shared by every transport
type deps struct {
	store      *db.DB
	dispatcher *bot.Dispatcher
	ttl        time.Duration
}

func openDeps() (*deps, error) {
	ttl, err := cfg.DialogueTTL()
	if err != nil {
		return nil, err
	}

	store, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	engine := dialogue.NewEngine(dialogue.WithTTL(ttl))
	handler := bot.NewHandler(store, engine, logger.Named("bot"))
	return &deps{
		store:      store,
		dispatcher: bot.NewDispatcher(handler),
		ttl:        ttl,
	}, nil
}

// sweepInterval checks a few times per ttl, at most once a minute
func (r *deps) sweepInterval() time.Duration {
	return max(min(r.ttl/4, time.Minute), time.Second)
}

// sweep drops expired prompts until ctx is done. It does nothing without a ttl.
func (r *deps) sweep(ctx context.Context, onExpired func(bot.ExpiredPrompt)) {
	if r.ttl <= 0 {
		return
	}
	r.dispatcher.SweepExpired(ctx, r.sweepInterval(), onExpired)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := openDeps()
	if err != nil {
		return err
	}
	defer rt.store.Close()

	id := models.Owner(cfg.Chat.Owner)
	if owner != 0 {
		id = models.Owner(owner)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app := ui.NewApp(ctx, rt.dispatcher, id, logger.Named("ui"))
	p := tea.NewProgram(app, tea.WithAltScreen())

	go rt.sweep(ctx, func(e bot.ExpiredPrompt) {
		if e.Owner == id {
			p.Send(ui.PromptExpired{Anchor: e.Slot.Context.Anchor})
		}
	})

	logger.Info("chat started", zap.Int64("owner", int64(id)))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running chat: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := openDeps()
	if err != nil {
		return err
	}
	defer rt.store.Close()

	addr := cfg.Gateway.Listen
	if listen != "" {
		addr = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := gateway.New(rt.dispatcher, logger.Named("gateway"))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx, addr)
	})
	g.Go(func() error {
		rt.sweep(ctx, srv.NotifyExpired)
		return nil
	})
	return g.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
