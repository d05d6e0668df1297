package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "updown-bot",
	Short: "Polymarket up/down cycle bot",
	Long: `Trading bot for 15-minute Bitcoin up/down markets on Polymarket.

The bot watches the first minutes of each market for a sharp dump on one
side, buys the dumped side, then hedges with the opposite side once the
combined entry prices guarantee a payout above cost. A completed pair
redeems at $1 per share regardless of the outcome.

Runs in paper trading by default; live execution requires CLOB API
credentials and a funded Polygon wallet.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
