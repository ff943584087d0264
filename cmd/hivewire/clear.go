package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Clear the replay buffer",
	GroupID: "events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := hubClient.Clear(context.Background()); err != nil {
			return fmt.Errorf("clearing buffer: %w", err)
		}
		if jsonOutput {
			fmt.Println(`{"success": true}`)
		} else {
			fmt.Println("Replay buffer cleared")
		}
		return nil
	},
}
