package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "redeemdesk",
	Short: "Redeem Dollar for collateral and collect the payout",
	Long: `redeemdesk drives the pool diamond's redeem and collect flow.

Configuration comes from deployments.json, .env and the environment. Without
CHAIN_RPC_URL and CHAIN_PRIVATE_KEY it runs against an in-memory chain.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(collateralsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(redeemCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
