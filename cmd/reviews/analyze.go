package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-reviews/analysis"
	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/store"
)

type analyzeFlags struct {
	db         string
	collection string
	top        int
	stopwords  string
	dict       string
	json       bool
}

var analyzeOpts analyzeFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze --collection <name>",
	Short: "Prints rating, vote, trend and word statistics for a stored collection.",
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.IntVar(&analyzeOpts.top, "top", 0, "Number of words in the word cloud")
	f.StringVar(&analyzeOpts.stopwords, "stopwords", "", "Extra stopwords file, one word per line")
	f.StringVar(&analyzeOpts.dict, "dict", "", "Custom dictionary file, one word per line")
	f.BoolVar(&analyzeOpts.json, "json", false, "Print the report as JSON")
	addStoreFlags(analyzeCmd, &analyzeOpts.db, &analyzeOpts.collection)
	rootCmd.AddCommand(analyzeCmd)
}

func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config, opts analyzeFlags) {
	flags := cmd.Flags()
	if flags.Changed("top") {
		cfg.Analysis.TopWords = opts.top
	}
	if flags.Changed("stopwords") {
		cfg.Analysis.StopwordsFile = opts.stopwords
	}
	if flags.Changed("dict") {
		cfg.Analysis.DictionaryFile = opts.dict
	}
	applyStoreFlags(cmd, cfg, opts.db, opts.collection)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyAnalyzeFlags(cmd, cfg, analyzeOpts)
	if err := cfg.ValidateStore(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	opts, err := analysisOptions(cfg.Analysis)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := store.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	comments, err := client.Comments(cfg.Mongo.Collection).All(ctx)
	if err != nil {
		return err
	}
	log.Debug("loaded comments", zap.Int("count", len(comments)), zap.String("collection", cfg.Mongo.Collection))

	report, err := analysis.BuildReport(comments, opts)
	if err != nil {
		return err
	}
	if analyzeOpts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	renderReport(cmd.OutOrStdout(), report)
	return nil
}

// analysisOptions builds the tokenizer from the configured word lists.
func analysisOptions(cfg config.AnalysisConfig) (analysis.Options, error) {
	stopwords := append([]string{}, analysis.DefaultStopwords...)
	if cfg.StopwordsFile != "" {
		extra, err := analysis.LoadWordList(cfg.StopwordsFile)
		if err != nil {
			return analysis.Options{}, err
		}
		stopwords = append(stopwords, extra...)
	}

	var dictionary []string
	if cfg.DictionaryFile != "" {
		words, err := analysis.LoadWordList(cfg.DictionaryFile)
		if err != nil {
			return analysis.Options{}, err
		}
		dictionary = words
	}

	tok, err := analysis.NewTokenizer(stopwords, dictionary, cfg.MinWordLength)
	if err != nil {
		return analysis.Options{}, err
	}
	return analysis.Options{
		TopVoted:  10,
		TopWords:  cfg.TopWords,
		Tokenizer: tok,
	}, nil
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	return t
}

func renderReport(w io.Writer, report *analysis.Report) {
	t := newTable(w, fmt.Sprintf("Ratings (%d comments)", report.Total))
	t.AppendHeader(table.Row{"Rating", "Score", "Count"})
	for _, tier := range report.Ratings {
		t.AppendRow(table.Row{tier.Label, tier.Score, tier.Count})
	}
	t.AppendFooter(table.Row{"Average", fmt.Sprintf("%.2f", report.Average.Mean), report.Average.Rated})
	t.Render()

	t = newTable(w, "Useful votes")
	t.AppendHeader(table.Row{"Votes", "Count"})
	for _, b := range report.Votes {
		t.AppendRow(table.Row{b.Label, b.Count})
	}
	t.Render()

	t = newTable(w, "Most useful reviewers")
	t.AppendHeader(table.Row{"#", "Reviewer", "Votes", "Rating"})
	for i, r := range report.TopVoted {
		t.AppendRow(table.Row{i + 1, r.ReviewerName, r.UsefulVotes, r.Rating})
	}
	t.Render()

	t = newTable(w, "Comments per month")
	t.AppendHeader(table.Row{"Month", "Count", "Rated", "Average"})
	for _, m := range report.Trend.Months {
		t.AppendRow(table.Row{m.Month, m.Count, m.Rated, fmt.Sprintf("%.2f", m.Average)})
	}
	if report.Trend.Unparsed > 0 {
		t.AppendFooter(table.Row{"Unparsed", report.Trend.Unparsed, "", ""})
	}
	t.Render()

	t = newTable(w, "Word cloud")
	t.AppendHeader(table.Row{"Word", "Count", "Weight"})
	for _, word := range report.Words {
		t.AppendRow(table.Row{word.Word, word.Count, fmt.Sprintf("%.3f", word.Weight)})
	}
	t.Render()
}
