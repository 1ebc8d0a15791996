// ankaa delivers business notifications over email, SMS, push, WhatsApp and
// the in-app inbox.
//
// Usage:
//
//	ankaa serve
//	ankaa notify --recipient u1 --type task.created --title "New task" --body "Check the sector"
//	ankaa phone normalize "(11) 98765-4321"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "ankaa",
		Short:   "Multi-channel notification delivery engine",
		Version: version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(phoneCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
