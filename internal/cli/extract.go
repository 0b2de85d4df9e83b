package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-keywords/internal/config"
	"github.com/loqalabs/loqa-keywords/internal/keywords"
	"github.com/loqalabs/loqa-keywords/internal/tagger"
)

type extractOutput struct {
	Keywords []string `json:"keywords"`
	Summary  string   `json:"summary"`
	Outcome  string   `json:"outcome"`
}

func NewExtractCmd(deps *Dependencies) *cobra.Command {
	var (
		mode    string
		lexicon string
		limit   int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "extract [transcript...]",
		Short: "Summarize a transcript as key terms",
		Long:  "Summarize a transcript as key terms. Without arguments the transcript is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript := strings.Join(args, " ")
			if len(args) == 0 {
				in := deps.Stdin
				if in == nil {
					in = cmd.InOrStdin()
				}
				data, err := io.ReadAll(in)
				if err != nil {
					return fmt.Errorf("reading transcript: %w", err)
				}
				transcript = strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r")
			}

			tg, err := tagger.FromConfig(config.TaggerConfig{Mode: mode, LexiconPath: lexicon})
			if err != nil {
				return err
			}
			if limit < 1 || limit > keywords.MaxKeywords {
				return fmt.Errorf("--limit must be between 1 and %d", keywords.MaxKeywords)
			}

			res := keywords.NewExtractor(tg, keywords.WithLimit(limit)).Analyze(transcript)
			deps.Logger.Debug("transcript analyzed",
				slog.String("tagger", mode),
				slog.String("outcome", string(res.Outcome)),
				slog.Int("keywords", len(res.Keywords)))

			out := cmd.OutOrStdout()
			if !asJSON {
				_, err := fmt.Fprintln(out, res.Summary)
				return err
			}
			payload := extractOutput{Keywords: res.Keywords, Summary: res.Summary, Outcome: string(res.Outcome)}
			if payload.Keywords == nil {
				payload.Keywords = []string{}
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}

	cmd.Flags().StringVar(&mode, "tagger", "prose", "tagger to use (prose, lexicon, plain)")
	cmd.Flags().StringVar(&lexicon, "lexicon", "", "YAML lexicon file for --tagger=lexicon")
	cmd.Flags().IntVar(&limit, "limit", keywords.MaxKeywords, "maximum number of keywords")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return cmd
}
