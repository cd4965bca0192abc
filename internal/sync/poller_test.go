package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/store"
	"github.com/nhle/travel-crm/tests/testutil"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStore(t *testing.T) *store.Store {
	t.Helper()
	fake := testutil.NewFakeTable()
	fake.Seed(remote.Row{"id": "l1", "name": "Asha"})

	s := store.New(fake)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCheckReportsEachReminderOnce(t *testing.T) {
	s := newStore(t)
	c := &clock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	p := New(s, time.Minute, WithClock(c.now))

	r, err := s.AddReminder("l1", "Call back", c.t.Add(-time.Minute))
	require.NoError(t, err)
	_, err = s.AddReminder("l1", "Send quote", c.t.Add(time.Hour))
	require.NoError(t, err)

	got := p.Check()
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].Reminder.ID)
	assert.Equal(t, "Asha", got[0].LeadName)

	assert.Empty(t, p.Check())

	c.t = c.t.Add(2 * time.Hour)
	got = p.Check()
	require.Len(t, got, 1)
	assert.Equal(t, "Send quote", got[0].Reminder.Task)
}

func TestRescheduledReminderIsReportedAgain(t *testing.T) {
	s := newStore(t)
	c := &clock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	p := New(s, time.Minute, WithClock(c.now))

	r, err := s.AddReminder("l1", "Call back", c.t)
	require.NoError(t, err)
	require.Len(t, p.Check(), 1)

	require.NoError(t, s.RescheduleReminder(r.ID, c.t.Add(time.Hour)))
	assert.Empty(t, p.Check())

	c.t = c.t.Add(time.Hour)
	assert.Len(t, p.Check(), 1)
}

func TestCompletedRemindersAreSkipped(t *testing.T) {
	s := newStore(t)
	c := &clock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	p := New(s, time.Minute, WithClock(c.now))

	r, err := s.AddReminder("l1", "Call back", c.t)
	require.NoError(t, err)
	require.NoError(t, s.CompleteReminder(r.ID))

	assert.Empty(t, p.Check())
}

func TestStartDeliversMessages(t *testing.T) {
	s := newStore(t)
	_, err := s.AddReminder("l1", "Call back", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	p := New(s, time.Hour)
	cmd := p.Start()
	require.NotNil(t, cmd)
	defer p.Stop()

	assert.Nil(t, p.Start())

	msg, ok := cmd().(ReminderDueMsg)
	require.True(t, ok)
	assert.Equal(t, "Call back", msg.Reminder.Task)
}

func TestDefaultInterval(t *testing.T) {
	p := New(newStore(t), 0)
	assert.Equal(t, DefaultInterval, p.interval)
}
