package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bananactl",
	Short: "Administration tool for the bananabot generation engine",
	Long: `bananactl manages balances, purchases and provider keys of a bananabot
deployment. It reads the same environment as the API.

Examples:
  bananactl balance 123456
  bananactl adjust @alice 10
  bananactl message @alice "your payment arrived"
  bananactl confirm-purchase 6f1c...
  bananactl sweep --older-than 10m
  bananactl set-key kie sk-...`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(adjustCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(confirmPurchaseCmd)
	rootCmd.AddCommand(packagesCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(setKeyCmd)

	adjustCmd.Flags().Bool("silent", false, "Do not notify the user")
	sweepCmd.Flags().Duration("older-than", 0, "Staleness age (defaults to WATCHDOG_STALE_AFTER)")
}
