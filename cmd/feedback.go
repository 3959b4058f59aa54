package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/similarity"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record or list analyst verdicts on suggested matches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetInt64("input")
		match, _ := cmd.Flags().GetInt64("match")
		verdict, _ := cmd.Flags().GetString("verdict")
		rater, _ := cmd.Flags().GetString("rater")
		notes, _ := cmd.Flags().GetString("notes")

		if err := cfg.Validate("feedback"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fb, err := similarity.NewFeedbackService(st).Submit(ctx, similarity.FeedbackInput{
			InputCompanyID: input,
			MatchCompanyID: match,
			Rater:          rater,
			Verdict:        model.Verdict(verdict),
			Notes:          notes,
		})
		if err != nil {
			return eris.Wrap(err, "feedback")
		}
		fmt.Fprintf(os.Stdout, "Recorded %s for %d → %d by %s (id %s)\n",
			fb.Verdict, fb.InputCompanyID, fb.MatchCompanyID, fb.Rater, fb.ID)
		return nil
	},
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feedback recorded against an input company",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		input, _ := cmd.Flags().GetInt64("input")

		if err := cfg.Validate("feedback"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := similarity.NewFeedbackService(st).List(ctx, input)
		if err != nil {
			return eris.Wrap(err, "feedback list")
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No feedback found.")
			return nil
		}
		formatFeedbackList(os.Stdout, items)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().Int64("input", 0, "input (seed) company id")
	feedbackCmd.Flags().Int64("match", 0, "suggested match company id")
	feedbackCmd.Flags().String("verdict", "", "good_match or not_a_match")
	feedbackCmd.Flags().String("rater", "", "who is giving the verdict")
	feedbackCmd.Flags().String("notes", "", "optional free-text notes")
	for _, f := range []string{"input", "match", "verdict", "rater"} {
		_ = feedbackCmd.MarkFlagRequired(f)
	}

	feedbackListCmd.Flags().Int64("input", 0, "input (seed) company id")
	_ = feedbackListCmd.MarkFlagRequired("input")

	feedbackCmd.AddCommand(feedbackListCmd)
	rootCmd.AddCommand(feedbackCmd)
}

func formatFeedbackList(out io.Writer, items []model.Feedback) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MATCH\tVERDICT\tRATER\tUPDATED\tNOTES")
	for _, f := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			f.MatchCompanyID,
			f.Verdict,
			f.Rater,
			f.UpdatedAt.Format("2006-01-02 15:04"),
			truncate(f.Notes, 60),
		)
	}
	_ = w.Flush()
}
