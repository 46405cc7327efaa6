package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) searchCommand() *cobra.Command {
	var (
		limit  int
		cursor string
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed notes",
		Long: `Ranks every note containing at least one query term by TF-IDF and
prints one page of results. Pass the printed cursor to --cursor to fetch
the next page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.b.Service.Search(cmd.Context(), args[0], limit, cursor)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if a.jsonOutput {
				return printJSON(cmd, res)
			}
			if len(res.DocumentIDs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
				return nil
			}
			for i, id := range res.DocumentIDs {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%.4f\n", id, res.Scores[i])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d  next cursor: %s\n", res.TotalHits, res.NextCursor)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "page size (0 uses the configured default)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor returned by a previous page")
	return cmd
}

func (a *app) highlightCommand() *cobra.Command {
	var tokens []string
	cmd := &cobra.Command{
		Use:   "highlight [fragment|-]",
		Short: "Wrap matched tokens of an HTML fragment in highlight markup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fragment := args[0]
			if fragment == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading fragment: %w", err)
				}
				fragment = string(data)
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.b.Service.Highlight(fragment, tokens))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tokens, "tokens", "t", nil, "tokens to highlight (comma separated)")
	return cmd
}

func (a *app) indexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index [id] [text]",
		Short: "Index or re-index a single note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.b.Service.IndexDocument(cmd.Context(), id, args[1]); err != nil {
				return fmt.Errorf("indexing note %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d\n", id)
			return nil
		},
	}
}

func (a *app) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a note from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.b.Service.RemoveDocument(cmd.Context(), id); err != nil {
				return fmt.Errorf("removing note %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", id)
			return nil
		},
	}
}

func (a *app) rebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Clear the index and re-index every note from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.b.Source == nil {
				return errNoSource
			}
			stats, err := a.b.Service.RebuildAll(cmd.Context(), a.b.Source)
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			if a.jsonOutput {
				return printJSON(cmd, stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed: %d  skipped: %d  failed: %d  took: %s\n",
				stats.Indexed, stats.Skipped, stats.Failed, stats.Duration)
			return nil
		},
	}
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.b.Service.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}
			if a.jsonOutput {
				return printJSON(cmd, stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "documents: %d\nterms: %d\ngeneration: %d\n",
				stats.Index.DocumentCount, stats.Index.TermCount, stats.Index.Generation)
			return nil
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("note id %q is not an integer", raw)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
