package sync

import (
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/travel-crm/internal/model"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 60 * time.Second

// ReminderDueMsg is a tea.Msg sent once for each reminder that becomes due.
type ReminderDueMsg struct {
	Reminder model.Reminder
	LeadName string
}

// ReminderSource is the part of the lead store the poller reads.
type ReminderSource interface {
	DueReminders(now time.Time) []model.Reminder
	Lead(id string) (model.Lead, bool)
}

// Poller checks for due reminders in the background.
type Poller struct {
	src      ReminderSource
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger

	resultCh  chan ReminderDueMsg
	triggerCh chan struct{}
	stopCh    chan struct{}

	mu       gosync.Mutex
	running  bool
	notified map[string]bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithLogger sets the poller's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Poller) { p.log = log }
}

// New creates a Poller over src.
func New(src ReminderSource, interval time.Duration, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		src:       src,
		interval:  interval,
		now:       time.Now,
		log:       zerolog.Nop(),
		resultCh:  make(chan ReminderDueMsg, 64),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		notified:  make(map[string]bool),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the polling goroutine and returns a tea.Cmd that waits for
// the first ReminderDueMsg.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	go p.loop()

	return p.waitForResult()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Refresh triggers an immediate check.
func (p *Poller) Refresh() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
	return nil
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Check()
		case <-p.triggerCh:
			p.Check()
		}
	}
}

// Check emits a ReminderDueMsg for every due reminder not reported before
// and returns them. A reminder that is rescheduled into the future becomes
// eligible again once it is due.
func (p *Poller) Check() []ReminderDueMsg {
	due := p.src.DueReminders(p.now())

	p.mu.Lock()
	stillDue := make(map[string]bool, len(due))
	var fresh []ReminderDueMsg
	for _, r := range due {
		stillDue[r.ID] = true
		if p.notified[r.ID] {
			continue
		}
		p.notified[r.ID] = true

		name := ""
		if lead, ok := p.src.Lead(r.LeadID); ok {
			name = lead.Name
		}
		fresh = append(fresh, ReminderDueMsg{Reminder: r, LeadName: name})
	}
	for id := range p.notified {
		if !stillDue[id] {
			delete(p.notified, id)
		}
	}
	p.mu.Unlock()

	for _, msg := range fresh {
		p.sendResult(msg)
	}
	if len(fresh) > 0 {
		p.log.Debug().Int("count", len(fresh)).Msg("reminders due")
	}
	return fresh
}

// sendResult sends a ReminderDueMsg without blocking.
func (p *Poller) sendResult(msg ReminderDueMsg) {
	select {
	case p.resultCh <- msg:
	default:
		p.log.Warn().Str("reminder_id", msg.Reminder.ID).Msg("reminder channel full; dropping")
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next due reminder.
// Call it after handling each ReminderDueMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
