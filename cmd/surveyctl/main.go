package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-surveys/internal/catalog"
	"github.com/mind-engage/mindengage-surveys/internal/client"
	"github.com/mind-engage/mindengage-surveys/internal/config"
	"github.com/mind-engage/mindengage-surveys/internal/db"
	"github.com/mind-engage/mindengage-surveys/internal/draft"
	"github.com/mind-engage/mindengage-surveys/internal/logging"
	"github.com/mind-engage/mindengage-surveys/internal/receipt"
	"github.com/mind-engage/mindengage-surveys/internal/sink"
)

// app carries global flags and the resources opened for one command.
type app struct {
	verbose   bool
	draftsDSN string
	server    string
	catalog   string
	clientID  string

	cfg config.Config
	log *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "surveyctl",
		Short:         "Take and manage feedback surveys from the terminal",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = config.FromEnv()
			level := a.cfg.LogLevel
			if a.verbose {
				level = "debug"
			}
			l, err := logging.New(level, true)
			if err != nil {
				return err
			}
			a.log = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.draftsDSN, "drafts", "surveys-drafts.db", "SQLite file holding saved drafts")
	root.PersistentFlags().StringVar(&a.server, "server", "", "Gateway base URL; empty uses the built-in backend")
	root.PersistentFlags().StringVar(&a.catalog, "catalog", "", "YAML survey table replacing the built-in one")
	root.PersistentFlags().StringVar(&a.clientID, "client-id", "", "Client id sent to the gateway")

	root.AddCommand(newListCmd(a), newShowCmd(a), newTakeCmd(a), newDraftsCmd(a))
	return root
}

// surveys returns the catalog in use: the gateway's when --server is
// set, otherwise the local table.
func (a *app) surveys() (catalog.Catalog, error) {
	if a.server != "" {
		return a.remote(), nil
	}
	if a.catalog != "" {
		return catalog.LoadFile(a.catalog)
	}
	return catalog.Default(), nil
}

func (a *app) remote() *client.Client {
	opts := []client.Option{}
	if a.clientID != "" {
		opts = append(opts, client.WithClientID(a.clientID))
	}
	return client.New(a.server, opts...)
}

// sinks returns the submitter and copier for take.
func (a *app) sinks(c catalog.Catalog) (sink.Submitter, sink.Copier) {
	if a.server != "" {
		rc := a.remote()
		return rc, rc
	}
	m := sink.NewMock(c,
		sink.WithSubmitDelay(a.cfg.SubmitDelay),
		sink.WithCopyDelay(a.cfg.CopyDelay),
		sink.WithReceipts(receipt.NewIssuer(a.cfg.ReceiptSecret, a.cfg.ReceiptIssuer)),
		sink.WithLogger(a.log))
	return m, m
}

// drafts opens the local draft store. Drafts never leave this machine.
func (a *app) drafts(ctx context.Context) (*draft.Store, func(), error) {
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:"+a.draftsDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open drafts %s: %w", a.draftsDSN, err)
	}
	return draft.NewStore(draft.NewSQLBackend(dbh), draft.WithLogger(a.log)), func() { _ = dbh.Close() }, nil
}
