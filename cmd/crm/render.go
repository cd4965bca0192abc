package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/travel-crm/internal/model"
)

const listTime = "2006-01-02 15:04"

func printTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.String())
}

func printLeads(w io.Writer, leads []model.Lead) {
	if len(leads) == 0 {
		fmt.Fprintln(w, "No leads")
		return
	}
	rows := make([][]string, 0, len(leads))
	for _, l := range leads {
		rows = append(rows, []string{
			l.ID,
			l.Name,
			l.ContactInfo.Phone,
			l.TripDetails.Destination,
			string(l.Status),
			string(l.Temperature),
			l.AssignedTo,
			formatTime(l.CreatedAt),
		})
	}
	printTable(w,
		[]string{"ID", "Name", "Phone", "Destination", "Status", "Temp", "Assigned", "Created"},
		rows)
}

func printLead(w io.Writer, l model.Lead, history []model.Interaction, reminders []model.Reminder) {
	fmt.Fprintf(w, "%s  %s\n", l.Name, l.ID)
	fmt.Fprintf(w, "  Status:      %s (%s)\n", l.Status, l.Temperature)
	fmt.Fprintf(w, "  Contact:     %s\n", joinNonEmpty(l.ContactInfo.Phone, l.ContactInfo.Email))
	fmt.Fprintf(w, "  Destination: %s\n", l.TripDetails.Destination)
	if l.TripDetails.Budget > 0 {
		fmt.Fprintf(w, "  Budget:      %s\n", strconv.FormatFloat(l.TripDetails.Budget, 'f', -1, 64))
	}
	if !l.TripDetails.StartDate.IsZero() {
		fmt.Fprintf(w, "  Travel date: %s\n", l.TripDetails.StartDate.Format("2006-01-02"))
	}
	pax := l.TripDetails.PaxConfig
	fmt.Fprintf(w, "  Pax:         %d adults, %d children\n", pax.Adults, pax.Children)
	fmt.Fprintf(w, "  Source:      %s\n", l.Source)
	fmt.Fprintf(w, "  Assigned to: %s\n", l.AssignedTo)
	if len(l.Tags) > 0 {
		fmt.Fprintf(w, "  Tags:        %s\n", strings.Join(l.Tags, ", "))
	}
	if l.Preferences != "" {
		fmt.Fprintf(w, "  Preferences: %s\n", l.Preferences)
	}

	if len(reminders) > 0 {
		fmt.Fprintln(w, "\nReminders")
		for _, r := range reminders {
			fmt.Fprintf(w, "  [%s] %s  %s  %s\n", check(r.Completed), formatTime(r.DueDate), r.Task, r.ID)
		}
	}
	if len(history) > 0 {
		fmt.Fprintln(w, "\nHistory")
		for _, in := range history {
			fmt.Fprintf(w, "  %s  %-13s %s\n", formatTime(in.Timestamp), in.Type, in.Content)
		}
	}
}

func printReminders(w io.Writer, reminders []model.Reminder, names map[string]string, now time.Time) {
	if len(reminders) == 0 {
		fmt.Fprintln(w, "No reminders")
		return
	}
	rows := make([][]string, 0, len(reminders))
	for _, r := range reminders {
		state := "open"
		switch {
		case r.Completed:
			state = "done"
		case r.IsOverdue(now):
			state = "overdue"
		}
		rows = append(rows, []string{r.ID, names[r.LeadID], r.Task, formatTime(r.DueDate), state})
	}
	printTable(w, []string{"ID", "Lead", "Task", "Due", "State"}, rows)
}

func printActivity(w io.Writer, logs []model.ActivityLog) {
	if len(logs) == 0 {
		fmt.Fprintln(w, "No activity")
		return
	}
	rows := make([][]string, 0, len(logs))
	for _, a := range logs {
		rows = append(rows, []string{formatTime(a.Timestamp), a.Actor, string(a.Action), a.Details})
	}
	printTable(w, []string{"When", "Actor", "Action", "Details"}, rows)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(listTime)
}

func check(done bool) string {
	if done {
		return "x"
	}
	return " "
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
