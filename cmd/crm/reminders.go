package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/ui/followup"
)

func newRemindersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Follow-up reminders (kept locally, see --history)",
	}
	cmd.AddCommand(
		newRemindersListCmd(c),
		newRemindersAddCmd(c),
		newRemindersDoneCmd(c),
		newRemindersRescheduleCmd(c),
		newRemindersDeleteCmd(c),
	)
	return cmd
}

// leadNames maps ids of the actor's visible leads to names.
func (c *cli) leadNames(actor model.Actor) map[string]string {
	names := make(map[string]string)
	for _, l := range c.app.Store.VisibleLeads(actor) {
		names[l.ID] = l.Name
	}
	return names
}

func newRemindersListCmd(c *cli) *cobra.Command {
	var dueOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders on leads you can see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			names := c.leadNames(actor)

			all := c.app.Store.Reminders()
			if dueOnly {
				all = c.app.Store.DueReminders(now)
			}
			visible := make([]model.Reminder, 0, len(all))
			for _, r := range all {
				if _, ok := names[r.LeadID]; ok {
					visible = append(visible, r)
				}
			}
			printReminders(c.out, visible, names, now)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dueOnly, "due", false, "Only open reminders that are due now")
	return cmd
}

func newRemindersAddCmd(c *cli) *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "add LEAD_ID TASK...",
		Short: "Schedule a reminder on a lead",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.visibleLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			when, err := parseDueFlag(due)
			if err != nil {
				return err
			}
			r, err := c.app.Store.AddReminder(l.ID, strings.Join(args[1:], " "), when)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Reminder %s: %s, due %s\n", r.ID, r.Task, formatTime(r.DueDate))
			return nil
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "Due date, YYYY-MM-DD[ HH:MM] (defaults to tomorrow 09:00)")
	return cmd
}

func newRemindersDoneCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "done REMINDER_ID",
		Short: "Mark a reminder completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.connect(cmd.Context()); err != nil {
				return err
			}
			if err := c.app.Store.CompleteReminder(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Completed %s\n", args[0])
			return nil
		},
	}
}

func newRemindersRescheduleCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule REMINDER_ID DUE",
		Short: "Move a reminder to another date (YYYY-MM-DD[ HH:MM])",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.connect(cmd.Context()); err != nil {
				return err
			}
			when, err := parseDueFlag(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if err := c.app.Store.RescheduleReminder(args[0], when); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Rescheduled %s to %s\n", args[0], formatTime(when))
			return nil
		},
	}
}

func newRemindersDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete REMINDER_ID",
		Short: "Delete a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.connect(cmd.Context()); err != nil {
				return err
			}
			if err := c.app.Store.DeleteReminder(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted %s\n", args[0])
			return nil
		},
	}
}

// parseDueFlag reads "YYYY-MM-DD[ HH:MM]"; empty means tomorrow 09:00.
func parseDueFlag(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	}
	date, clock, _ := strings.Cut(s, " ")
	return followup.ParseDue(date, clock, time.Local)
}
