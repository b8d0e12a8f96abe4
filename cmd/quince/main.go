// Command quince is a minimal QUIC client/server for manual testing and
// demonstration of the transport package.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RootCmd is the main command for the 'quince' binary.
var RootCmd = &cobra.Command{
	Use:   "quince",
	Short: "quince is a command-line QUIC client and server",
}

func init() {
	RootCmd.AddCommand(clientCmd)
	RootCmd.AddCommand(serverCmd)
}
