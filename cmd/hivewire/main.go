package main

import (
	"os"
	"strings"

	"github.com/alfredjeanlab/hivewire/internal/client"
	"github.com/alfredjeanlab/hivewire/internal/ui"
	"github.com/spf13/cobra"
)

var (
	streamServer string
	httpURL      string
	jsonOutput   bool

	hubClient *client.HTTPClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("HIVEWIRE_HTTP_ADDR"); s != "" {
		if !strings.Contains(s, "://") {
			return "http://" + s
		}
		return s
	}
	return "http://localhost:7691"
}

func defaultStreamServer() string {
	if s := os.Getenv("HIVEWIRE_ADDR"); s != "" {
		return s
	}
	return "localhost:7690"
}

var rootCmd = &cobra.Command{
	Use:          "hivewire <command>",
	Short:        "Real-time event hub for agent swarms",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		hubClient = client.NewHTTPClient(httpURL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&streamServer, "server", defaultStreamServer(), "stream server address")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "events", Title: "Events:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Events
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
