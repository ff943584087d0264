package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var emitCmd = &cobra.Command{
	Use:     "emit <channel> <type>",
	Short:   "Publish a single event",
	GroupID: "events",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, typ := args[0], args[1]
		data, _ := cmd.Flags().GetString("data")

		var payload json.RawMessage
		switch data {
		case "":
		case "-":
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			payload = raw
		default:
			payload = json.RawMessage(data)
		}
		if len(payload) > 0 && !json.Valid(payload) {
			return fmt.Errorf("payload is not valid JSON")
		}

		if err := hubClient.Emit(context.Background(), channel, typ, payload); err != nil {
			return fmt.Errorf("emitting event: %w", err)
		}

		if jsonOutput {
			fmt.Println(`{"success": true}`)
		} else {
			fmt.Printf("Emitted %s on %s\n", typ, channel)
		}
		return nil
	},
}

func init() {
	emitCmd.Flags().String("data", "", `event payload as JSON ("-" reads stdin)`)
}
