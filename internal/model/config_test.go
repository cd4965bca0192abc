package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Remote.Driver)
	assert.Equal(t, "leads", cfg.Remote.Table)
	assert.Equal(t, "travelcrm:leads", cfg.Feed.Channel)
	assert.Equal(t, 60, cfg.Reminders.PollIntervalSec)
	require.Len(t, cfg.Users, 1)
	assert.Equal(t, RoleAdmin, cfg.Users[0].Role)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
remote:
  driver: postgres
  postgres_dsn: postgres://crm@localhost/crm
reminders:
  poll_interval_sec: -5
users:
  - name: Priya
    role: agent
    passcode: "4821"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	t.Setenv("CRM_REMOTE_TABLE", "trip_leads")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Remote.Driver)
	assert.Equal(t, "postgres://crm@localhost/crm", cfg.Remote.PostgresDSN)
	assert.Equal(t, "trip_leads", cfg.Remote.Table)
	assert.Equal(t, 60, cfg.Reminders.PollIntervalSec)
	require.Len(t, cfg.Users, 1)
	assert.Equal(t, User{Name: "Priya", Role: RoleAgent, Passcode: "4821"}, cfg.Users[0])
}

func TestLoadConfigRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote: [unclosed"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "reading config")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultAppConfig()
	cfg.Remote.Driver = DriverMongo
	cfg.Remote.MongoURI = "mongodb://localhost:27017"
	cfg.Inbox.Host = "imap.example.com"

	require.NoError(t, SaveConfig(path, cfg))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMongo, got.Remote.Driver)
	assert.Equal(t, "mongodb://localhost:27017", got.Remote.MongoURI)
	assert.Equal(t, "imap.example.com", got.Inbox.Host)
	assert.Equal(t, cfg.Users, got.Users)
}
