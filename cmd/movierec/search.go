package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/movierec/internal/search"
)

const searchDefaultLimit = 10

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		categories []string
		limit      int
		byTag      bool
		byCategory bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search movies by keyword, category or tag",
		Long: `Search movies by keyword, category or tag.

Keyword search scores each movie by how many query words appear in its
title, genres or overview.

Examples:
  movierec search "space adventure"
  movierec search --category Hollywood,Bollywood thief
  movierec search --tag thriller
  movierec search --by-category Tollywood`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if byTag && byCategory {
				return fmt.Errorf("--tag and --by-category cannot be combined")
			}

			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			eng, cleanup, err := buildEngine(cfg, logger)
			defer cleanup()
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if byTag || byCategory {
				var items []search.Item
				if byTag {
					items, err = eng.SearchByTag(ctx, query)
				} else {
					items, err = eng.SearchByCategory(ctx, query)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, items)
				}
				printItems(out, items)
				return nil
			}

			hits, err := eng.KeywordSearch(ctx, query, categories, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, hits)
			}
			printHits(out, hits)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&categories, "category", nil, "Restrict keyword search to these categories")
	cmd.Flags().IntVarP(&limit, "limit", "l", searchDefaultLimit, "Maximum number of results (1-50)")
	cmd.Flags().BoolVar(&byTag, "tag", false, "Match the query against genres instead")
	cmd.Flags().BoolVar(&byCategory, "by-category", false, "List movies in the category named by the query")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printHits(out io.Writer, hits []search.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matches.")
		return
	}
	for i, h := range hits {
		fmt.Fprintf(out, "%2d. %-40s score %d\n", i+1, describe(h.Item), h.Score)
	}
}

func printItems(out io.Writer, items []search.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No matches.")
		return
	}
	for i, it := range items {
		fmt.Fprintf(out, "%2d. %s\n", i+1, describe(it))
	}
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
