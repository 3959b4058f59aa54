package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "comps",
	Short: "Find comparable companies for deal research",
	Long: `comps scores companies against one or more seed companies across revenue,
headcount, verticals, sector, funding and geography, then returns the closest
matches with a short explanation of each.

Configuration comes from config.yaml (or --config), a local .env file, and
COMPS_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cmd.Flag("config").Value.String())
		if err != nil {
			return err
		}
		if lvl := cmd.Flag("log-level").Value.String(); lvl != "" {
			c.Log.Level = lvl
		}
		cfg = c

		return eris.Wrap(config.InitLogger(cfg.Log), "comps: init logger")
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (default ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
