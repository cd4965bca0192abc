package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/travel-crm/internal/credential"
)

const testConfig = `
remote:
  driver: sqlite
  sqlite_path: %DB%
log:
  level: error
  console: false
users:
  - name: Admin
    role: admin
    passcode: "0000"
  - name: Priya
    role: agent
    passcode: "4821"
`

type harness struct {
	t       *testing.T
	config  string
	history string
	vault   *credential.Vault
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := regexp.MustCompile(`%DB%`).ReplaceAllString(testConfig, filepath.Join(dir, "crm.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	return &harness{
		t:       t,
		config:  path,
		history: filepath.Join(dir, "history.json"),
		vault:   credential.NewVault(keyring.NewArrayKeyring(nil)),
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	c := &cli{
		out:       &out,
		errOut:    &errOut,
		openVault: func() (*credential.Vault, error) { return h.vault, nil },
	}
	root := newRootCmd(c)
	root.SetArgs(append([]string{"--config", h.config, "--history", h.history}, args...))
	err := root.ExecuteContext(context.Background())
	if cerr := c.teardown(); err == nil {
		err = cerr
	}
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "crm %v", args)
	return out
}

var addedID = regexp.MustCompile(`Added .+ \((.+)\)`)

func (h *harness) addLead(args ...string) string {
	h.t.Helper()
	out := h.mustRun(append([]string{"leads", "add"}, args...)...)
	m := addedID.FindStringSubmatch(out)
	require.Len(h.t, m, 2, out)
	return m[1]
}

func TestLeadsRequireLogin(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("leads", "list")
	assert.ErrorContains(t, err, "not logged in")

	_, err = h.run("login", "--passcode", "9999")
	assert.Error(t, err)
}

func TestLeadLifecycle(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun("login", "--passcode", "0000"), "Signed in as Admin (admin)")
	assert.Contains(t, h.mustRun("whoami"), "Admin (admin)")

	id := h.addLead("--name", "Asha", "--phone", "98450 00001", "--destination", "Bali", "--budget", "50000")

	out := h.mustRun("leads", "list")
	assert.Contains(t, out, "Asha")
	assert.Contains(t, out, "Bali")

	out = h.mustRun("leads", "status", id, "discussion",
		"--follow-up", "Send Bali quote", "--due", "2024-06-02 10:00")
	assert.Contains(t, out, "Asha moved to Discussion")
	assert.Contains(t, out, "Send Bali quote")

	out = h.mustRun("leads", "list", "--status", "Discussion")
	assert.Contains(t, out, "Asha")
	assert.Contains(t, h.mustRun("leads", "list", "--status", "New"), "No leads")

	assert.Contains(t, h.mustRun("reminders", "list"), "Send Bali quote")

	h.mustRun("leads", "comment", id, "Prefers", "beach", "villas")
	out = h.mustRun("leads", "show", id)
	assert.Contains(t, out, "Prefers beach villas")
	assert.Contains(t, out, "Status updated to Discussion")

	h.mustRun("leads", "update", id, "--destination", "Maldives")
	assert.Contains(t, h.mustRun("leads", "show", id), "Destination: Maldives")

	_, err := h.run("leads", "update", id)
	assert.ErrorContains(t, err, "nothing to update")

	assert.Contains(t, h.mustRun("leads", "activity"), "COMMENT")

	assert.Contains(t, h.mustRun("leads", "delete", id), "Deleted Asha")
	assert.Contains(t, h.mustRun("leads", "list"), "No leads")
	assert.Contains(t, h.mustRun("reminders", "list"), "No reminders")
}

func TestStatusWithoutFollowUp(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--passcode", "0000")
	id := h.addLead("--name", "Ravi")

	out := h.mustRun("leads", "status", id, "Won", "--no-follow-up")
	assert.Contains(t, out, "Ravi moved to Won")
	assert.Contains(t, h.mustRun("reminders", "list"), "No reminders")
}

func TestReminderCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--passcode", "0000")
	id := h.addLead("--name", "Meera")

	out := h.mustRun("reminders", "add", id, "Call", "Meera", "--due", "2024-06-02")
	m := regexp.MustCompile(`Reminder (\S+):`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	rid := m[1]

	assert.Contains(t, h.mustRun("reminders", "list", "--due"), "Call Meera")
	h.mustRun("reminders", "reschedule", rid, "2024-07-01", "08:30")
	h.mustRun("reminders", "done", rid)

	out = h.mustRun("reminders", "list")
	assert.Contains(t, out, "done")
	assert.NotContains(t, h.mustRun("reminders", "list", "--due"), "Call Meera")

	assert.Contains(t, h.mustRun("leads", "show", id), "Completed task: Call Meera")

	h.mustRun("reminders", "delete", rid)
	_, err := h.run("reminders", "done", rid)
	assert.ErrorContains(t, err, "reminder not found")
}

func TestAgentSeesOnlyOwnLeads(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--passcode", "0000")
	adminLead := h.addLead("--name", "Asha")

	h.mustRun("login", "--passcode", "4821")
	h.addLead("--name", "Kiran")

	out := h.mustRun("leads", "list")
	assert.Contains(t, out, "Kiran")
	assert.NotContains(t, out, "Asha")

	_, err := h.run("leads", "show", adminLead)
	assert.ErrorContains(t, err, "not found")
}

func TestImportCSV(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--passcode", "0000")

	csv := filepath.Join(t.TempDir(), "leads.csv")
	data := "Name,Phone,Destination\n" +
		"Asha,98450 00001,Bali\n" +
		"Ravi,98450 00002,Goa\n" +
		",,Kerala\n" +
		"Meera,,Ladakh\n" +
		",,\n"
	require.NoError(t, os.WriteFile(csv, []byte(data), 0o600))

	out := h.mustRun("import", "csv", csv)
	assert.Contains(t, out, "Imported 3 leads, skipped 1 rows")

	out = h.mustRun("leads", "list")
	assert.Contains(t, out, "Ladakh")
}

func TestImportInboxNeedsCredentials(t *testing.T) {
	h := newHarness(t)
	h.mustRun("login", "--passcode", "0000")

	_, err := h.run("import", "inbox")
	assert.ErrorContains(t, err, "inbox host and username must be configured")
}

func TestThemeAndSecrets(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun("theme"), "default")
	h.mustRun("theme", "mono")
	assert.Contains(t, h.mustRun("theme"), "mono")

	_, err := h.run("theme", "neon")
	assert.ErrorContains(t, err, "unknown theme")

	h.mustRun("secret", "set", "inbox-password", "--value", "pw")
	got, err := h.vault.Get(credential.KeyInboxPassword)
	require.NoError(t, err)
	assert.Equal(t, "pw", got)

	h.mustRun("secret", "delete", "inbox-password")
	_, err = h.vault.Get(credential.KeyInboxPassword)
	assert.ErrorIs(t, err, credential.ErrNotFound)
}

func TestMigrateAndLogout(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun("migrate"), "sqlite backend is up to date")

	h.mustRun("login", "--passcode", "0000")
	assert.Contains(t, h.mustRun("logout"), "Signed out")
	_, err := h.run("whoami")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun("config", "path"), h.config)

	_, err := h.run("config", "init")
	assert.ErrorContains(t, err, "already exists")

	assert.Contains(t, h.mustRun("config", "init", "--force", "--log-level", "warn"), "Wrote")
	data, err := os.ReadFile(h.config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "level: warn")
	assert.Contains(t, string(data), "Priya")
}
