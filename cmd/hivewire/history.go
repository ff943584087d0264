package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Show buffered events",
	GroupID: "events",
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetString("channel")
		limit, _ := cmd.Flags().GetInt("limit")

		events, err := hubClient.History(context.Background(), channel, limit)
		if err != nil {
			return fmt.Errorf("fetching history: %w", err)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(events, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		for _, ev := range events {
			printEventLine(ev)
		}
		fmt.Printf("\n%d events\n", len(events))
		return nil
	},
}

func init() {
	historyCmd.Flags().String("channel", "", "restrict to one channel")
	historyCmd.Flags().Int("limit", 0, "most recent N events (0 = all retained)")
}
