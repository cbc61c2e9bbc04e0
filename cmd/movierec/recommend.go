package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/knowledge-engine/movierec/internal/engine"
	"github.com/knowledge-engine/movierec/internal/search"
)

const (
	defaultRecommendations = 5
	sampleRecommendations  = 3
)

func newRecommendCmd(root *rootOptions) *cobra.Command {
	var (
		count    int
		asJSON   bool
		noSample bool
	)

	cmd := &cobra.Command{
		Use:   "recommend [title]",
		Short: "Recommend movies similar to a title",
		Long: `Recommend movies similar to a title.

With a title, prints one set of recommendations and exits. Without one,
starts an interactive prompt that asks for a title and then a count
(blank keeps the -n value); type 'exit' to quit.

Examples:
  movierec recommend Inception
  movierec recommend -n 10 "The Dark Knight"
  movierec recommend --json Inception | jq '.neighbors[].item.title'
  movierec recommend`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				title := strings.Join(args, " ")
				return recommendOnce(cmd.Context(), eng, out, title, count, asJSON)
			}
			return recommendLoop(cmd.Context(), eng, cmd.InOrStdin(), out, count, !noSample)
		},
	}

	cmd.Flags().IntVarP(&count, "number", "n", defaultRecommendations, "Number of recommendations (1-50)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noSample, "no-sample", false, "Skip the sample recommendation shown when the prompt starts")
	return cmd
}

func recommendOnce(ctx context.Context, eng *engine.Engine, out io.Writer, title string, n int, asJSON bool) error {
	rec, err := eng.Recommend(ctx, title, n)
	if err != nil {
		printRecommendError(out, err)
		return err
	}

	if asJSON {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	printRecommendation(out, rec)
	return nil
}

// recommendLoop reads titles until EOF or "exit", asking for a count after
// each title. Per-title failures are printed and the loop continues; only a
// failure to load movies at all stops it.
func recommendLoop(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer, n int, sample bool) error {
	snap, err := eng.Corpus.Get(ctx)
	if err != nil {
		return err
	}
	if len(snap.Items) == 0 {
		return search.ErrEmptyCorpus
	}
	fmt.Fprintf(out, "Loaded %d movies.\n", len(snap.Items))

	if sample {
		first := snap.Items[0].Title
		fmt.Fprintf(out, "\nSample recommendations for %q:\n", first)
		if rec, err := eng.Recommend(ctx, first, sampleRecommendations); err == nil {
			printRecommendation(out, rec)
		}
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nEnter a movie title (or 'exit' to quit): ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		title := strings.TrimSpace(scanner.Text())
		switch {
		case title == "":
			continue
		case strings.EqualFold(title, "exit"), strings.EqualFold(title, "quit"):
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		fmt.Fprintf(out, "How many recommendations would you like? (default %d): ", n)
		count := n
		if scanner.Scan() {
			parsed, err := parseCount(scanner.Text(), n)
			if err != nil {
				fmt.Fprintf(out, "Input error: %v\n", err)
				continue
			}
			count = parsed
		}

		rec, err := eng.Recommend(ctx, title, count)
		if err != nil {
			printRecommendError(out, err)
			continue
		}
		printRecommendation(out, rec)
	}
}

// parseCount reads a recommendation count; blank input means def
func parseCount(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return count, nil
}

func printRecommendation(out io.Writer, rec *engine.Recommendation) {
	fmt.Fprintf(out, "Because you asked about %s:\n", describe(rec.Item))
	if len(rec.Neighbors) == 0 {
		fmt.Fprintln(out, "  No other movies to compare with.")
		return
	}
	for i, n := range rec.Neighbors {
		fmt.Fprintf(out, "  %2d. %-40s %.4f\n", i+1, describe(n.Item), n.Score)
	}
}

func printRecommendError(out io.Writer, err error) {
	var notFound *engine.NotFoundError
	switch {
	case errors.As(err, &notFound):
		fmt.Fprintf(out, "No movie found matching %q.\n", notFound.Title)
		if len(notFound.Suggestions) > 0 {
			fmt.Fprintf(out, "Did you mean: %s?\n", strings.Join(notFound.Suggestions, ", "))
		}
	case errors.Is(err, search.ErrEmptyCorpus):
		fmt.Fprintln(out, "No movies are loaded.")
	default:
		fmt.Fprintf(out, "Error: %v\n", err)
	}
}

func describe(it search.Item) string {
	var b strings.Builder
	b.WriteString(it.Title)
	if it.Year > 0 {
		fmt.Fprintf(&b, " (%d)", it.Year)
	}
	if it.Category != "" {
		fmt.Fprintf(&b, " [%s]", it.Category)
	}
	return b.String()
}
