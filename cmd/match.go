package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comps/internal/similarity"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank comparable companies for one or more seed ids",
	Example: `  comps match --seeds 101,202 --min-score 70 --limit 10
  comps match --seeds 101 --country US --format csv > comps.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		seeds, _ := cmd.Flags().GetInt64Slice("seeds")
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		limit, _ := cmd.Flags().GetInt("limit")
		country, _ := cmd.Flags().GetString("country")
		sector, _ := cmd.Flags().GetString("sector")
		format, _ := cmd.Flags().GetString("format")

		if err := checkFormat(format); err != nil {
			return err
		}
		if err := cfg.Validate("match"); err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer e.Close()

		req := similarity.Request{
			SeedIDs: seeds,
			Limit:   cfg.Similarity.Limit,
			Filters: similarity.Filters{Country: country, Sector: sector},
		}
		if cmd.Flags().Changed("limit") {
			req.Limit = limit
		}
		score := cfg.Similarity.MinScore
		if cmd.Flags().Changed("min-score") {
			score = minScore
		}
		req.MinScore = &score

		resp, err := e.Ranker.Rank(ctx, req)
		if err != nil {
			return eris.Wrap(err, "match")
		}
		return writeMatches(os.Stdout, resp, format)
	},
}

func init() {
	matchCmd.Flags().Int64Slice("seeds", nil, "seed company ids (required)")
	matchCmd.Flags().Float64("min-score", similarity.DefaultMinScore, "minimum similarity score (0-100)")
	matchCmd.Flags().Int("limit", similarity.DefaultLimit, "maximum matches returned (1-100)")
	matchCmd.Flags().String("country", "", "only consider candidates in this country")
	matchCmd.Flags().String("sector", "", "only consider candidates in this industry sector")
	matchCmd.Flags().String("format", "table", "output format: table, csv, or json")
	_ = matchCmd.MarkFlagRequired("seeds")
	rootCmd.AddCommand(matchCmd)
}

func checkFormat(format string) error {
	switch format {
	case "table", "csv", "json":
		return nil
	default:
		return eris.Errorf("unknown format %q (table, csv, json)", format)
	}
}

func writeMatches(out io.Writer, resp *similarity.Response, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "csv":
		return writeMatchesCSV(out, resp)
	default:
		formatMatchesTable(out, resp)
		return nil
	}
}

func formatMatchesTable(out io.Writer, resp *similarity.Response) {
	names := make([]string, len(resp.InputCompanies))
	for i, c := range resp.InputCompanies {
		names[i] = fmt.Sprintf("%s (%d)", c.Name, c.ID)
	}
	fmt.Fprintf(out, "Input: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(out, "Matches: %d of %d\n\n", len(resp.Matches), resp.TotalResults)

	if len(resp.Matches) == 0 {
		fmt.Fprintln(out, "No comparable companies found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tID\tNAME\tSECTOR\tCOUNTRY\tSCORE\tCONF\tSEED")
	for i, m := range resp.Matches {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%.1f\t%.2f\t%d\n",
			i+1,
			m.Company.ID,
			truncate(m.Company.Name, 40),
			truncate(m.Company.IndustrySector, 24),
			m.Company.Country,
			m.SimilarityScore,
			m.Confidence,
			m.MatchedSeedID,
		)
	}
	_ = w.Flush()

	fmt.Fprintln(out)
	for i, m := range resp.Matches {
		fmt.Fprintf(out, "%d. %s\n", i+1, m.Reasoning)
	}
}

func writeMatchesCSV(out io.Writer, resp *similarity.Response) error {
	w := csv.NewWriter(out)
	_ = w.Write([]string{
		"rank", "company_id", "name", "industry_sector", "country",
		"similarity_score", "confidence", "categories_with_score",
		"input_company_id", "matching_attributes", "reasoning",
	})
	for i, m := range resp.Matches {
		_ = w.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(m.Company.ID, 10),
			m.Company.Name,
			m.Company.IndustrySector,
			m.Company.Country,
			strconv.FormatFloat(m.SimilarityScore, 'f', 2, 64),
			strconv.FormatFloat(m.Confidence, 'f', 2, 64),
			strconv.Itoa(m.CategoriesWithScore),
			strconv.FormatInt(m.MatchedSeedID, 10),
			strings.Join(m.MatchingAttributes, "; "),
			m.Reasoning,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "write csv")
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
