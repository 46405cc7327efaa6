// Package cli implements searchctl, an operator tool for querying and
// maintaining the note search index from a shell.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/logger"
)

// Backend is what the commands operate on. Source may be nil when no
// document database is reachable.
type Backend struct {
	Service *search.Service
	Source  indexer.DocumentSource
	Close   func() error
}

// Opener builds a Backend from the loaded configuration.
type Opener func(cfg *config.Config) (*Backend, error)

var errNoSource = errors.New("no document source configured")

type app struct {
	open       Opener
	configPath string
	backend    string
	jsonOutput bool
	b          *Backend
}

// NewRootCommand returns the searchctl command tree. Every subcommand opens
// its backend through open.
func NewRootCommand(open Opener) *cobra.Command {
	a := &app{open: open}
	root := &cobra.Command{
		Use:   "searchctl",
		Short: "Query and maintain the note search index",
		Long: `searchctl talks to the same index the search service uses.
It can run queries, highlight fragments, index or remove single notes
and rebuild the whole index from the notes database.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "override index.backend (redis or memory)")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output results as JSON")

	root.AddCommand(
		a.searchCommand(),
		a.highlightCommand(),
		a.indexCommand(),
		a.removeCommand(),
		a.rebuildCommand(),
		a.statsCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Index.Backend = a.backend
	}
	logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, "text")

	b, err := a.open(cfg)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	a.b = b
	return nil
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.b == nil || a.b.Close == nil {
		return nil
	}
	return a.b.Close()
}
