package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comps/internal/similarity"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Print the active weight table, or validate a weights file",
	Example: `  comps weights
  comps weights --file weights/aggressive.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, _ := cmd.Flags().GetString("file")

		var (
			w   similarity.WeightTable
			err error
		)
		switch {
		case file != "":
			w, err = similarity.LoadWeights(file)
		default:
			w, err = loadWeights(cfg)
		}
		if err != nil {
			return err
		}
		if err := w.Validate(); err != nil {
			return eris.Wrap(err, "weights")
		}

		formatWeights(os.Stdout, w)
		return nil
	},
}

func init() {
	weightsCmd.Flags().String("file", "", "YAML weights file to validate (default: similarity.weights_file)")
	rootCmd.AddCommand(weightsCmd)
}

func formatWeights(out io.Writer, w similarity.WeightTable) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DIMENSION\tMAX\tCONF\tTIERS")
	for _, d := range w.Dimensions() {
		tiers := make([]string, len(d.Tiers))
		for i, t := range d.Tiers {
			tiers[i] = fmt.Sprintf("≥%.2f→%.2f", t.MinRatio, t.Fraction)
		}
		fmt.Fprintf(tw, "%s\t%.0f\t%.2f\t%s\n", d.Name, d.MaxPoints, d.Confidence, strings.Join(tiers, " "))
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "\nTotal: %.0f  Hash: %s\n", w.MaxTotal(), w.Hash())
}
