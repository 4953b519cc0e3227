package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/explorer/internal/config"
	"github.com/fruitsalade/explorer/internal/logging"
	"github.com/fruitsalade/explorer/internal/persist"
	"github.com/fruitsalade/explorer/internal/workspace"
	"github.com/fruitsalade/explorer/pkg/vpath"
)

// annotationSession on a command limits how much of the session is opened
// before it runs. Without it the store is opened and the workspace is
// switched to.
const (
	annotationSession = "session"

	sessionStoreOnly = "store"
	sessionNone      = "none"
)

type session struct {
	cfg     *config.Config
	store   persist.Store
	manager *workspace.Manager
	ctx     context.Context
	cancel  context.CancelFunc
}

var (
	sess session

	flagWorkspace string
	flagStore     string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "explorer",
	Short: "Manage explorer workspaces",
	Long: `explorer edits the virtual file trees kept by the explorer server.
It opens the configured store directly (STORE_BACKEND and friends, or a .env
file), so it can seed and inspect workspaces without a running server.`,
	SilenceUsage:      true,
	PersistentPreRunE: openSession,
}

// Execute runs the root command and closes whatever session it opened,
// including after a failed command.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := closeSession(); err == nil {
		err = cerr
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "workspace to operate on (default $DEFAULT_WORKSPACE)")
	rootCmd.PersistentFlags().StringVar(&flagStore, "store", "", "override STORE_BACKEND")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level")
}

func openSession(cmd *cobra.Command, _ []string) error {
	if err := logging.Init(logging.Config{Level: flagLogLevel, Format: "console", OutputPath: "stderr"}); err != nil {
		return fmt.Errorf("logging init: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagStore != "" {
		cfg.StoreBackend = flagStore
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	sess.cfg = cfg
	sess.ctx, sess.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if cmd.Annotations[annotationSession] == sessionNone {
		return nil
	}

	sess.store, err = persist.Open(sess.ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	sess.manager = workspace.NewManager(sess.store, nil,
		workspace.WithRules(vpath.Rules{FoldCase: cfg.FoldCase, Reserved: cfg.ReservedNames}),
	)
	if cmd.Annotations[annotationSession] == sessionStoreOnly {
		return nil
	}

	name := flagWorkspace
	if name == "" {
		name = cfg.DefaultWorkspace
	}
	return sess.manager.SwitchTo(sess.ctx, name)
}

func closeSession() error {
	var err error
	if sess.manager != nil {
		err = sess.manager.Close(sess.ctx)
	}
	if sess.store != nil {
		if cerr := sess.store.Close(); err == nil {
			err = cerr
		}
	}
	if sess.cancel != nil {
		sess.cancel()
	}
	_ = logging.Sync()
	sess = session{}
	return err
}
