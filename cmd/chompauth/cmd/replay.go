package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thechompapp/chompauth/auth"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay mutations queued while offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		pending, err := engine.PendingActions()
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}
		fmt.Printf("Replaying %d queued action(s)...\n", len(pending))

		failed, err := engine.ProcessPending(cmd.Context())
		for _, action := range failed {
			fmt.Printf("  permanently failed: %s (%s, %d attempts)\n", action.Kind, action.ID, action.Attempts)
		}
		if err != nil && !errors.Is(err, auth.ErrQueueReplayFailed) {
			return err
		}

		remaining, perr := engine.PendingActions()
		if perr != nil {
			return perr
		}
		fmt.Printf("Done: %d replayed, %d permanently failed, %d still queued\n",
			len(pending)-len(remaining)-len(failed), len(failed), len(remaining))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
