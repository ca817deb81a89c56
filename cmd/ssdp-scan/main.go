// Ssdp-scan discovers UPnP devices and services on the local network.
//
// It joins the SSDP multicast group, sends one M-SEARCH and reports every
// response and NOTIFY advertisement it hears.
//
// Usage:
//
//	ssdp-scan [command] [flags]
//
// Running without arguments performs a one-shot scan.
// See 'ssdp-scan --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/ssdpscan/internal/logging"
	"github.com/muurk/ssdpscan/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ssdp-scan",
	Short: "SSDP discovery client",
	Long: `Discover UPnP devices and services on the local network.

ssdp-scan joins the SSDP multicast group 239.255.255.250:1900, sends a single
M-SEARCH request and reports the responses.

If no command is specified, a one-shot scan is run.`,
	Version:       version.Version,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ssdp-scan %s\n", version.Full())
		fmt.Printf("built with %s\n", version.Platform())
	},
}
