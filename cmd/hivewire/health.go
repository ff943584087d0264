package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/hivewire/internal/client"
)

// healthCmd probes both listeners: the one-shot HTTP surface via /v1/health
// and the stream listener via a full connect handshake.
var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check hub health",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		httpStatus := "ok"
		if status, err := hubClient.Health(ctx); err != nil {
			httpStatus = err.Error()
		} else if status != "ok" {
			httpStatus = status
		}

		streamStatus := "ok"
		if sc, err := client.Dial(ctx, streamServer); err != nil {
			streamStatus = err.Error()
		} else {
			_ = sc.Close()
		}

		if jsonOutput {
			out := map[string]string{"status": httpStatus, "stream": streamStatus}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			fmt.Printf("HTTP:   %s\n", httpStatus)
			fmt.Printf("Stream: %s\n", streamStatus)
		}

		if httpStatus != "ok" {
			return fmt.Errorf("unhealthy: %s", httpStatus)
		}
		if streamStatus != "ok" {
			return fmt.Errorf("unhealthy: stream listener: %s", streamStatus)
		}
		return nil
	},
}
