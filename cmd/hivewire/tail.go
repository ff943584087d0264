package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alfredjeanlab/hivewire/internal/client"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:     "tail",
	Short:   "Stream events as they are published",
	GroupID: "events",
	RunE: func(cmd *cobra.Command, args []string) error {
		channels, _ := cmd.Flags().GetStringSlice("channels")
		sinceFlag, _ := cmd.Flags().GetUint64("since")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sc, err := client.Dial(ctx, streamServer)
		if err != nil {
			return err
		}
		defer func() { _ = sc.Close() }()

		names := channels
		if len(names) == 0 {
			// No filter: follow everything the hub announces.
			for _, ch := range sc.Channels() {
				names = append(names, string(ch))
			}
		}
		if _, err := sc.Subscribe(names...); err != nil {
			return fmt.Errorf("subscribing: %w", err)
		}

		events := sc.Listen(ctx)
		if cmd.Flags().Changed("since") {
			since := sinceFlag
			if err := sc.Replay(&since); err != nil {
				return fmt.Errorf("requesting replay: %w", err)
			}
		}

		for ev := range events {
			if jsonOutput {
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Println(string(data))
			} else {
				printEventLine(ev)
			}
		}
		return sc.Err()
	},
}

func init() {
	tailCmd.Flags().StringSlice("channels", nil, "channels to follow (default: all)")
	tailCmd.Flags().Uint64("since", 0, "replay buffered events with id greater than this first")
}
