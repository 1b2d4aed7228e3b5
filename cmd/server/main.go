package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "drivechat",
	Short: "Google Drive over WhatsApp",
	Long: `drivechat runs the WhatsApp webhook and OAuth callback on a local
HTTP server, and offers operator commands against the token store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (or set DRIVECHAT_CONFIG)")
	rootCmd.AddCommand(serveCmd, importTokenCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
