package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running bot",
	Long: `Queries a running bot's HTTP API and prints a summary: execution
mode, tracked market, open cycle, portfolio balances and recent trades.`,
	RunE: runStatus,
}

//nolint:gochecknoglobals // Cobra boilerplate
var statusAddr string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusAddr, "addr", "a", "http://localhost:8080", "Bot HTTP address")
}

// statusView mirrors the engine's status payload for display.
type statusView struct {
	Running       bool               `json:"running"`
	Enabled       bool               `json:"enabled"`
	Mode          string             `json:"mode"`
	UptimeSeconds float64            `json:"uptimeSeconds"`
	Cash          float64            `json:"cash"`
	Positions     map[string]float64 `json:"positions"`
	RealizedPnL   float64            `json:"realizedPnl"`
	UnrealizedPnL float64            `json:"unrealizedPnl"`
	Equity        float64            `json:"equity"`
	WatchActive   bool               `json:"watchActive"`
	Market        *struct {
		Slug     string             `json:"slug"`
		Status   string             `json:"status"`
		EndTime  time.Time          `json:"endTime"`
		BestBids map[string]float64 `json:"bestBids"`
		BestAsks map[string]float64 `json:"bestAsks"`
	} `json:"market"`
	Cycle *struct {
		ID           string  `json:"id"`
		Status       string  `json:"status"`
		TotalCost    float64 `json:"totalCost"`
		LockedProfit float64 `json:"lockedProfit"`
	} `json:"cycle"`
	RecentTrades []struct {
		Leg    int     `json:"leg"`
		Side   string  `json:"side"`
		Shares float64 `json:"shares"`
		Price  float64 `json:"price"`
	} `json:"recentTrades"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(statusAddr + "/api/status")
	if err != nil {
		return fmt.Errorf("query bot: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bot returned %s", resp.Status)
	}

	var status statusView
	err = json.NewDecoder(resp.Body).Decode(&status)
	if err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Printf("=== Bot Status ===\n\n")
	fmt.Printf("Mode:    %s\n", status.Mode)
	fmt.Printf("Trading: %s\n", enabledLabel(status.Enabled))
	fmt.Printf("Uptime:  %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	fmt.Printf("Watch:   %v\n\n", status.WatchActive)

	if status.Market != nil {
		fmt.Printf("Market:  %s (%s)\n", status.Market.Slug, status.Market.Status)
		fmt.Printf("Ends:    %s\n", status.Market.EndTime.Local().Format(time.RFC822))
		fmt.Printf("Book:    UP %.3f/%.3f  DOWN %.3f/%.3f\n\n",
			status.Market.BestBids["UP"], status.Market.BestAsks["UP"],
			status.Market.BestBids["DOWN"], status.Market.BestAsks["DOWN"])
	} else {
		fmt.Printf("Market:  none selected\n\n")
	}

	if status.Cycle != nil {
		fmt.Printf("Cycle:   %s (%s)\n", status.Cycle.ID, status.Cycle.Status)
		if status.Cycle.Status == "complete" {
			fmt.Printf("Locked:  $%.4f on $%.2f cost\n", status.Cycle.LockedProfit, status.Cycle.TotalCost)
		}
		fmt.Println()
	}

	fmt.Printf("Cash:       $%.2f\n", status.Cash)
	fmt.Printf("Positions:  UP %.2f  DOWN %.2f\n", status.Positions["UP"], status.Positions["DOWN"])
	fmt.Printf("Realized:   $%.4f\n", status.RealizedPnL)
	fmt.Printf("Unrealized: $%.4f\n", status.UnrealizedPnL)
	fmt.Printf("Equity:     $%.2f\n", status.Equity)

	if len(status.RecentTrades) > 0 {
		fmt.Printf("\nRecent trades:\n")
		for _, trade := range status.RecentTrades {
			fmt.Printf("  leg %d  %-4s  %+8.2f @ %.3f\n", trade.Leg, trade.Side, trade.Shares, trade.Price)
		}
	}

	return nil
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "paused"
}
