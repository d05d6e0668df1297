package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msoriano-dev/updown-cycle-bot/internal/app"
	"github.com/msoriano-dev/updown-cycle-bot/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the cycle bot",
	Long: `Starts the up/down cycle bot, which will:
1. Discover upcoming 15-minute up/down markets from the Gamma API
2. Subscribe to the selected market's orderbooks via WebSocket
3. Buy a side that dumps sharply in the opening minutes
4. Hedge with the opposite side when the price sum locks in a profit

Use --market to pin the bot to one market by slug for debugging.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("market", "m", "", "Pin the bot to a single market by slug (for debugging)")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	marketSlug, _ := cmd.Flags().GetString("market")

	application, err := app.New(cfg, logger, &app.Options{
		MarketSlug: marketSlug,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
