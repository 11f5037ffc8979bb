package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/autocompleter"
	"github.com/Adithya-Monish-Kumar-K/finisher/pkg/storage"
)

func createTrainCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "train [phrase...]",
		Short: "Add phrases to the model",
		Long: `Add phrases to the model from arguments and/or a file.

The file is either a JSON array of strings or plain text with one phrase per
line. Use "-" to read from stdin. Input is trained in batches of
server.maxTrainBatch phrases.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			strs, err := collectInput(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			if len(strs) == 0 {
				return fmt.Errorf("nothing to train: pass phrases as arguments or use --file")
			}
			ctx := cmd.Context()
			return a.withModel(ctx, nil, func(ac *autocompleter.AutoCompleter, _ storage.Store) error {
				var total autocompleter.TrainStats
				for i, batch := range chunk(strs, a.cfg.Server.MaxTrainBatch) {
					stats, err := ac.Train(ctx, batch)
					if err != nil {
						return fmt.Errorf("training batch %d: %w", i+1, err)
					}
					total.Phrases += stats.Phrases
					total.NewPhrases += stats.NewPhrases
					total.Skipped += stats.Skipped
					total.Tokens += stats.Tokens
					total.NewTokens += stats.NewTokens
					total.KeysWritten += stats.KeysWritten
					slog.Debug("batch trained", "batch", i+1, "phrases", stats.Phrases)
				}
				if total.Phrases > 0 {
					a.invalidateCache(ctx, ac.Namespace())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "trained %d phrases (%d new, %d skipped), %d tokens (%d new), %d keys written\n",
					total.Phrases, total.NewPhrases, total.Skipped, total.Tokens, total.NewTokens, total.KeysWritten)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `phrases file (JSON array or one per line, "-" for stdin)`)
	return cmd
}

func createCorrectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "correct <phrase>",
		Short: "Spell-correct each token of a phrase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withModel(ctx, nil, func(ac *autocompleter.AutoCompleter, _ storage.Store) error {
				tokens, err := ac.CorrectPhrase(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tokens, " "))
				return nil
			})
		},
	}
}

func createGuessCmd(a *app) *cobra.Command {
	var scores bool
	cmd := &cobra.Command{
		Use:   "guess <token...>",
		Short: "List the trained phrases that best match the given tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withModel(ctx, nil, func(ac *autocompleter.AutoCompleter, _ storage.Store) error {
				ranked, err := ac.GuessScored(ctx, args)
				if err != nil {
					return err
				}
				printRanked(cmd.OutOrStdout(), ranked, scores)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&scores, "scores", "s", false, "show hit count and coverage for each phrase")
	return cmd
}

func createCompleteCmd(a *app) *cobra.Command {
	var scores bool
	cmd := &cobra.Command{
		Use:   "complete <partial phrase>",
		Short: "Correct a partially typed phrase and list the phrases it completes to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withModel(ctx, nil, func(ac *autocompleter.AutoCompleter, _ storage.Store) error {
				tokens, err := ac.CorrectPrefixes(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				ranked, err := ac.GuessScored(ctx, tokens)
				if err != nil {
					return err
				}
				printRanked(cmd.OutOrStdout(), ranked, scores)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&scores, "scores", "s", false, "show hit count and coverage for each phrase")
	return cmd
}

func createBustCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "bust",
		Short: "Delete everything the model has learned in its namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to bust namespace %q without --yes", a.cfg.Model.Namespace)
			}
			ctx := cmd.Context()
			return a.withModel(ctx, nil, func(ac *autocompleter.AutoCompleter, _ storage.Store) error {
				n, err := ac.Bust(ctx)
				if err != nil {
					return err
				}
				a.invalidateCache(ctx, ac.Namespace())
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d keys from namespace %q\n", n, ac.Namespace())
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func printRanked(w io.Writer, ranked []autocompleter.ScoredPhrase, scores bool) {
	for _, p := range ranked {
		if scores {
			fmt.Fprintf(w, "%d\t%.3f\t%s\n", p.Score, p.Coverage, p.Text)
			continue
		}
		fmt.Fprintln(w, p.Text)
	}
}

// collectInput returns the phrases in args followed by those read from file.
func collectInput(stdin io.Reader, file string, args []string) ([]string, error) {
	strs := append([]string(nil), args...)
	if file == "" {
		return strs, nil
	}
	var r io.Reader = stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	fromFile, err := readStrings(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return append(strs, fromFile...), nil
}

// readStrings parses a JSON array of strings, or otherwise one phrase per
// non-blank line.
func readStrings(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var strs []string
		if err := json.Unmarshal(trimmed, &strs); err != nil {
			return nil, fmt.Errorf("decoding JSON array: %w", err)
		}
		return strs, nil
	}
	var strs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			strs = append(strs, line)
		}
	}
	return strs, sc.Err()
}

// chunk splits strs into consecutive batches of at most size elements.
func chunk(strs []string, size int) [][]string {
	if size <= 0 || len(strs) <= size {
		if len(strs) == 0 {
			return nil
		}
		return [][]string{strs}
	}
	batches := make([][]string, 0, (len(strs)+size-1)/size)
	for start := 0; start < len(strs); start += size {
		end := min(start+size, len(strs))
		batches = append(batches, strs[start:end])
	}
	return batches
}
