// Command do bundles the developer and operator tasks: hot-reload development,
// migrations, slot maintenance, VAPID key generation and remote unit control.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/templui/accountable/cmd/do/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "do",
		Short: "Development and operations tools for accountable",
		// Commands report their own errors; usage is noise for runtime failures.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.DevCmd())
	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.SlotsCmd())
	rootCmd.AddCommand(cmd.VAPIDCmd())
	rootCmd.AddCommand(cmd.RemoteCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
