package commands

import (
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ProductScout/internal/config"
	"ProductScout/internal/logging"
)

var (
	cfgFile string
	noColor bool

	cfg       config.Config
	logger    *slog.Logger
	closeLogs = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "productscout",
	Short: "ProductScout ranks products from community discussions",
	Long: `ProductScout turns a free-text product need into a ranked top-10 list
backed by quotes from Reddit threads and web search results.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load(cfgFile)
		logger, closeLogs = logging.New(cfg.Logging)
		color.NoColor = color.NoColor || noColor
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogs()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults to $PRODUCTSCOUT_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
