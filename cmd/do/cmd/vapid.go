package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/accountable/internal/push"
)

func VAPIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vapid",
		Short: "Web Push key management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "Generate a VAPID key pair in .env format",
		RunE: func(cmd *cobra.Command, args []string) error {
			public, private, err := push.GenerateVAPIDKeys()
			if err != nil {
				return fmt.Errorf("failed to generate keys: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", public)
			fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", private)
			return nil
		},
	})

	return cmd
}
