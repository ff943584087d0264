package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/hivewire/internal/client"
	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/ui"
)

// printEventLine prints one event in tail format:
// timestamp, channel, type, id, then the raw payload if present.
func printEventLine(ev *event.Event) {
	ts := ev.Timestamp.Local().Format("15:04:05")
	line := fmt.Sprintf("%s %s %s #%d",
		ui.RenderMuted(ts),
		ui.RenderChannel(string(ev.Channel)),
		ev.Type,
		ev.ID,
	)
	if len(ev.Payload) > 0 {
		line += " " + string(ev.Payload)
	}
	fmt.Println(line)
}

func printClientTable(clients []client.ClientInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBSCRIPTIONS\tCONNECTED\tLAST PONG")
	for _, c := range clients {
		subs := make([]string, len(c.Subscriptions))
		for i, s := range c.Subscriptions {
			subs[i] = string(s)
		}
		joined := strings.Join(subs, ",")
		if joined == "" {
			joined = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			c.ID,
			joined,
			c.ConnectedAt.Local().Format("2006-01-02 15:04:05"),
			c.LastPongAt.Local().Format("15:04:05"),
		)
	}
	w.Flush()
	fmt.Printf("\n%d clients\n", len(clients))
}
