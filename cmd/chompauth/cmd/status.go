package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current authentication state",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		status := engine.Resume()
		if !status.IsAuthenticated {
			fmt.Println("Not authenticated")
			return nil
		}

		fmt.Printf("Authenticated as %s (%s)\n", status.Identity.Email, status.Identity.DisplayName)
		if len(status.Identity.Roles) > 0 {
			fmt.Printf("Roles: %s\n", strings.Join(status.Identity.Roles, ", "))
		}
		if status.Offline {
			fmt.Println("Mode: offline (authenticated from cached snapshot)")
		} else {
			fmt.Printf("Session expires: %s\n", status.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		}

		pending, err := engine.PendingActions()
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			fmt.Printf("Pending offline actions: %d\n", len(pending))
			for _, action := range pending {
				fmt.Printf("  %s  %s  attempts=%d\n", action.CreatedAt.Local().Format("15:04:05"), action.Kind, action.Attempts)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
