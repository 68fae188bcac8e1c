package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "embedgate",
	Short: "EmbedGate — embed token access controller",
	Long:  "EmbedGate serves embeddable AI chat widgets and controls access to them: token lifecycle, per-token rate limits, monthly quotas, domain allowlists and usage analytics.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/embedgate.yaml)")
}

func main() {
	// Load a local .env if present; real deployments set the environment.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
