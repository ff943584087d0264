package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show hub lifecycle state and counters",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := hubClient.Status(context.Background())
		if err != nil {
			return fmt.Errorf("fetching status: %w", err)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Println("Hivewire Status")
		fmt.Printf("  State:     %s\n", st.State)
		fmt.Printf("  Stream:    %s:%d\n", st.Host, st.Port)
		fmt.Printf("  HTTP:      %s:%d\n", st.Host, st.HTTPPort)
		fmt.Printf("  Clients:   %d\n", st.ConnectionCount)
		fmt.Printf("  Events:    %d\n", st.EventCount)
		fmt.Printf("  Buffered:  %d\n", st.BufferSize)
		return nil
	},
}
