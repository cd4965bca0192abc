package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nhle/travel-crm/internal/mapper"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/ui/followup"
)

var errNotSaved = errors.New("the remote table did not accept the change; see the log for details")

// leadFlags are the editable lead fields shared by add and update.
type leadFlags struct {
	name        string
	phone       string
	email       string
	destination string
	budget      float64
	travelDate  string
	adults      int
	children    int
	preferences string
	temperature string
	source      string
	assign      string
	tags        []string
}

func (f *leadFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.name, "name", "n", "", "Customer name")
	fs.StringVar(&f.phone, "phone", "", "Phone number")
	fs.StringVar(&f.email, "email", "", "Email address")
	fs.StringVarP(&f.destination, "destination", "d", "", "Trip destination")
	fs.Float64Var(&f.budget, "budget", 0, "Trip budget")
	fs.StringVar(&f.travelDate, "travel-date", "", "Travel start date (YYYY-MM-DD)")
	fs.IntVar(&f.adults, "adults", 0, "Number of adults")
	fs.IntVar(&f.children, "children", 0, "Number of children")
	fs.StringVar(&f.preferences, "preferences", "", "Free-form preferences")
	fs.StringVar(&f.temperature, "temperature", "", "Hot, Warm or Cold")
	fs.StringVar(&f.source, "source", "", "Lead source (Website, Instagram, Referral, ...)")
	fs.StringVar(&f.assign, "assign", "", "Agent the lead is assigned to")
	fs.StringSliceVar(&f.tags, "tags", nil, "Comma separated tags")
}

func (f *leadFlags) lead() (model.Lead, error) {
	l := model.Lead{
		Name:        strings.TrimSpace(f.name),
		ContactInfo: model.ContactInfo{Phone: f.phone, Email: f.email},
		TripDetails: model.TripDetails{
			Destination: f.destination,
			Budget:      f.budget,
			PaxConfig:   model.PaxConfig{Adults: f.adults, Children: f.children, ChildAges: []int{}},
		},
		Preferences: f.preferences,
		Temperature: parseTemperature(f.temperature),
		Source:      model.LeadSource(strings.TrimSpace(f.source)),
		AssignedTo:  strings.TrimSpace(f.assign),
		Tags:        f.tags,
	}
	if f.travelDate != "" {
		d, err := time.Parse(mapper.DateLayout, f.travelDate)
		if err != nil {
			return model.Lead{}, fmt.Errorf("parsing --travel-date: %w", err)
		}
		l.TripDetails.StartDate = model.TravelDate(d)
	}
	return l, nil
}

// patch builds a LeadPatch from the flags the user actually set. The
// nested contact and trip objects are sent whole, starting from current.
func (f *leadFlags) patch(fs *pflag.FlagSet, current model.Lead) (model.LeadPatch, error) {
	var p model.LeadPatch
	want, err := f.lead()
	if err != nil {
		return p, err
	}

	if fs.Changed("name") {
		p.Name = &want.Name
	}
	if fs.Changed("phone") || fs.Changed("email") {
		c := current.ContactInfo
		if fs.Changed("phone") {
			c.Phone = want.ContactInfo.Phone
		}
		if fs.Changed("email") {
			c.Email = want.ContactInfo.Email
		}
		p.ContactInfo = &c
	}
	if fs.Changed("destination") || fs.Changed("budget") || fs.Changed("travel-date") ||
		fs.Changed("adults") || fs.Changed("children") {
		td := current.TripDetails
		if fs.Changed("destination") {
			td.Destination = want.TripDetails.Destination
		}
		if fs.Changed("budget") {
			td.Budget = want.TripDetails.Budget
		}
		if fs.Changed("travel-date") {
			td.StartDate = want.TripDetails.StartDate
		}
		if fs.Changed("adults") {
			td.PaxConfig.Adults = want.TripDetails.PaxConfig.Adults
		}
		if fs.Changed("children") {
			td.PaxConfig.Children = want.TripDetails.PaxConfig.Children
		}
		p.TripDetails = &td
	}
	if fs.Changed("preferences") {
		p.Preferences = &want.Preferences
	}
	if fs.Changed("temperature") {
		p.Temperature = &want.Temperature
	}
	if fs.Changed("source") {
		p.Source = &want.Source
	}
	if fs.Changed("assign") {
		p.AssignedTo = &want.AssignedTo
	}
	if fs.Changed("tags") {
		p.Tags = &want.Tags
	}
	return p, nil
}

func newLeadsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "leads", Short: "Lead operations"}
	cmd.AddCommand(
		newLeadsListCmd(c),
		newLeadsShowCmd(c),
		newLeadsAddCmd(c),
		newLeadsUpdateCmd(c),
		newLeadsStatusCmd(c),
		newLeadsDeleteCmd(c),
		newLeadsCommentCmd(c),
		newActivityCmd(c),
	)
	return cmd
}

func newLeadsListCmd(c *cli) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the leads you can see, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			leads := c.app.Store.VisibleLeads(actor)
			if status != "" {
				want := parseStatus(status)
				filtered := leads[:0]
				for _, l := range leads {
					if l.Status == want {
						filtered = append(filtered, l)
					}
				}
				leads = filtered
			}
			printLeads(c.out, leads)
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Only leads in this status")
	return cmd
}

func newLeadsShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show LEAD_ID",
		Short: "Show a lead with its reminders and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.visibleLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printLead(c.out, l,
				c.app.Store.InteractionsForLead(l.ID),
				c.app.Store.RemindersForLead(l.ID))
			return nil
		},
	}
}

func newLeadsAddCmd(c *cli) *cobra.Command {
	var f leadFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a lead",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lead, err := f.lead()
			if err != nil {
				return err
			}
			if lead.Name == "" && lead.ContactInfo.Phone == "" {
				return errors.New("--name or --phone required")
			}
			if lead.Name == "" {
				lead.Name = "Lead " + lead.ContactInfo.Phone
			}
			actor, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			if lead.AssignedTo == "" && !actor.IsAdmin() {
				lead.AssignedTo = actor.Name
			}

			stored, ok := c.app.Store.Add(cmd.Context(), lead)
			if !ok {
				return errNotSaved
			}
			fmt.Fprintf(c.out, "Added %s (%s)\n", stored.Name, stored.ID)
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func newLeadsUpdateCmd(c *cli) *cobra.Command {
	var f leadFlags
	cmd := &cobra.Command{
		Use:   "update LEAD_ID",
		Short: "Change lead fields; only the flags given are sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := c.visibleLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			patch, err := f.patch(cmd.Flags(), current)
			if err != nil {
				return err
			}
			if patch.IsEmpty() {
				return errors.New("nothing to update")
			}
			if !c.app.Store.Update(cmd.Context(), current.ID, patch) {
				return errNotSaved
			}
			fmt.Fprintf(c.out, "Updated %s\n", current.ID)
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func newLeadsStatusCmd(c *cli) *cobra.Command {
	var (
		note       string
		task       string
		due        string
		noFollowUp bool
	)
	cmd := &cobra.Command{
		Use:   "status LEAD_ID STATUS",
		Short: "Move a lead to another pipeline status",
		Long: "Move a lead to another pipeline status. Any status may follow any other.\n" +
			"Statuses other than New and Lost offer to schedule a follow-up reminder.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.visibleLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			status := parseStatus(args[1])
			if err := c.app.Store.UpdateStatus(cmd.Context(), l.ID, status, note); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s moved to %s\n", l.Name, status)

			prompt, ok := c.app.Store.FollowUpPrompt()
			if !ok {
				return nil
			}
			return c.followUp(prompt, task, due, noFollowUp)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Interaction text (defaults to \"Status updated to STATUS\")")
	cmd.Flags().StringVar(&task, "follow-up", "", "Schedule this follow-up task without prompting")
	cmd.Flags().StringVar(&due, "due", "", "Follow-up due date, YYYY-MM-DD[ HH:MM]")
	cmd.Flags().BoolVar(&noFollowUp, "no-follow-up", false, "Do not schedule a follow-up")
	return cmd
}

// followUp resolves a pending prompt from flags, an interactive form, or
// by dismissing it.
func (c *cli) followUp(prompt model.FollowUpPrompt, task, due string, skip bool) error {
	s := c.app.Store
	now := time.Now()

	switch {
	case skip:
		s.DismissFollowUp()
		return nil

	case task != "" || due != "":
		when := now.AddDate(0, 0, 1)
		if due != "" {
			date, clock, _ := strings.Cut(strings.TrimSpace(due), " ")
			t, err := followup.ParseDue(date, clock, time.Local)
			if err != nil {
				s.DismissFollowUp()
				return err
			}
			when = t
		}
		r, err := s.ScheduleFollowUp(task, when)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Reminder %s: %s, due %s\n", r.ID, r.Task, formatTime(r.DueDate))
		return nil

	case interactive():
		task, when, ok, err := followup.Run(prompt, now)
		if err != nil {
			s.DismissFollowUp()
			return err
		}
		if !ok {
			s.DismissFollowUp()
			return nil
		}
		r, err := s.ScheduleFollowUp(task, when)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Reminder %s: %s, due %s\n", r.ID, r.Task, formatTime(r.DueDate))
		return nil

	default:
		s.DismissFollowUp()
		fmt.Fprintf(c.out, "Tip: schedule a follow-up with `crm reminders add %s TASK --due YYYY-MM-DD`\n", prompt.LeadID)
		return nil
	}
}

func newLeadsDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete LEAD_ID",
		Short: "Delete a lead with its local history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.visibleLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !c.app.Store.Delete(cmd.Context(), l.ID) {
				return errNotSaved
			}
			fmt.Fprintf(c.out, "Deleted %s\n", l.Name)
			return nil
		},
	}
}

func newLeadsCommentCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "comment LEAD_ID TEXT...",
		Short: "Add a note to a lead",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := c.visibleLead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := c.app.Store.AddComment(l.ID, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Comment added to %s\n", l.Name)
			return nil
		},
	}
}

func newActivityCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "activity",
		Short: "Show the activity log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := c.connect(cmd.Context()); err != nil {
				return err
			}
			printActivity(c.out, c.app.Store.ActivityLogs())
			return nil
		},
	}
}

// visibleLead connects and resolves id among the leads the actor may see.
func (c *cli) visibleLead(ctx context.Context, id string) (model.Lead, error) {
	actor, err := c.connect(ctx)
	if err != nil {
		return model.Lead{}, err
	}
	for _, l := range c.app.Store.VisibleLeads(actor) {
		if l.ID == id {
			return l, nil
		}
	}
	return model.Lead{}, fmt.Errorf("lead %s not found", id)
}

// parseStatus matches a pipeline status case-insensitively. Unknown
// statuses are carried through as given.
func parseStatus(s string) model.LeadStatus {
	s = strings.TrimSpace(s)
	for _, st := range model.PipelineStatuses {
		if strings.EqualFold(string(st), s) {
			return st
		}
	}
	return model.LeadStatus(s)
}

func parseTemperature(s string) model.Temperature {
	s = strings.TrimSpace(s)
	for _, t := range []model.Temperature{model.TemperatureHot, model.TemperatureWarm, model.TemperatureCold} {
		if strings.EqualFold(string(t), s) {
			return t
		}
	}
	return model.Temperature(s)
}
