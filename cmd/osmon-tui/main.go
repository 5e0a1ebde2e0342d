package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/osmon/pkg/client"
)

func main() {
	endpoint := flag.String("endpoint", envOrDefault("OSMON_ENDPOINT", client.DefaultEndpoint), "osmon-d API base URL")
	pollRate := flag.Duration("poll-rate", time.Second, "how often to refresh from the daemon")
	flag.Parse()

	p := tea.NewProgram(initialModel(client.NewClient(*endpoint), *pollRate), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
