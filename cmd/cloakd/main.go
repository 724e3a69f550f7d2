// Command cloakd serves cloak proposal verification to a consensus
// engine over gRPC.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cloakd",
		Short:         "Proposal verification for an encrypted-mempool ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCommand(), initCommand(), keygenCommand())
	return root
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cloakd: %v\n", err)
		os.Exit(1)
	}
}
