package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var clientsCmd = &cobra.Command{
	Use:     "clients",
	Short:   "List connected clients and their subscriptions",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		clients, err := hubClient.Clients(context.Background())
		if err != nil {
			return fmt.Errorf("fetching clients: %w", err)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(clients, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		printClientTable(clients)
		return nil
	},
}
