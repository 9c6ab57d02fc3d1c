package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded bars through the analysis pipeline",
	Long: `Replay feeds a recorded bar file through the same pipeline the service runs,
printing analysis snapshots as JSON lines.

Examples:
  replay run --file data/btc_15m.csv --symbol BTCUSDT
  replay run --file bars.jsonl --every 4 --state-dir /tmp/sessions
  replay run --file bars.csv --direction LONG --price 42150 --trigger "FVG retest"`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newRunCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
