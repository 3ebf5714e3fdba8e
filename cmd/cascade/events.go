package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/cascade/internal/config"
	"github.com/ShayCichocki/cascade/internal/events"
	"github.com/ShayCichocki/cascade/pkg/models"
)

var (
	eventsTaskID string
	eventsLimit  int
)

var (
	eventTimeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	eventTierStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	eventReasonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	eventTypeStyles = map[models.EventType]lipgloss.Style{
		models.EventCreated:             lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		models.EventRouted:              lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		models.EventEscalationRequested: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.EventEscalationApproved:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		models.EventEscalationRejected:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.EventEscalationExecuted:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		models.EventCompleted:           lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
		models.EventFailed:              lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the cascade event log",
	Long: `Show recorded cascade events from the local event store.

Without flags, shows the most recent events across all tasks. Use
--task to show the complete trail for one task in emission order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Events.DBPath == "" {
			return fmt.Errorf("no events.db_path configured; event history is unavailable")
		}

		store, err := events.OpenStore(cfg.Events.DBPath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer store.Close()

		var list []models.CascadeEvent
		if eventsTaskID != "" {
			list, err = store.ByTask(eventsTaskID)
		} else {
			list, err = store.Recent(eventsLimit)
		}
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No events recorded.")
			return nil
		}

		for _, ev := range list {
			fmt.Println(renderEvent(ev))
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsTaskID, "task", "", "Show all events for one task ID")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Number of recent events to show")
}

// renderEvent formats one event as a single styled line.
func renderEvent(ev models.CascadeEvent) string {
	style, ok := eventTypeStyles[ev.Type]
	if !ok {
		style = eventReasonStyle
	}

	parts := []string{
		eventTimeStyle.Render(ev.Timestamp.Local().Format("2006-01-02 15:04:05")),
		style.Render(fmt.Sprintf("%-21s", ev.Type)),
		eventTierStyle.Render(fmt.Sprintf("%-6s", ev.Tier)),
		eventTimeStyle.Render(shortID(ev.TaskID)),
	}
	if ev.Reason != "" {
		parts = append(parts, eventReasonStyle.Render(ev.Reason))
	}
	if len(ev.EscalationPath) > 1 {
		trail := make([]string, len(ev.EscalationPath))
		for i, t := range ev.EscalationPath {
			trail[i] = string(t)
		}
		parts = append(parts, eventTimeStyle.Render("["+strings.Join(trail, " -> ")+"]"))
	}
	return strings.Join(parts, "  ")
}

// shortID truncates a task UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
