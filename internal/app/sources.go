package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nhle/travel-crm/internal/credential"
	"github.com/nhle/travel-crm/internal/importer"
	"github.com/nhle/travel-crm/internal/importer/inbox"
	"github.com/nhle/travel-crm/internal/model"
	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/remote/mongo"
	"github.com/nhle/travel-crm/internal/remote/postgres"
	"github.com/nhle/travel-crm/internal/remote/redisfeed"
	"github.com/nhle/travel-crm/internal/remote/rest"
	"github.com/nhle/travel-crm/internal/remote/sqlite"
)

// apiKeyEnv overrides the REST API key stored in the keyring.
const apiKeyEnv = "CRM_REMOTE_API_KEY"

// inboxPasswordEnv overrides the inbox password stored in the keyring.
const inboxPasswordEnv = "CRM_INBOX_PASSWORD"

// openBackend opens the table selected by remote.driver and returns it
// together with its close function.
func (a *App) openBackend(ctx context.Context) (remote.Table, func() error, error) {
	rc := a.Config.Remote
	log := a.Log.With().Str("component", "remote").Str("driver", rc.Driver).Logger()

	switch rc.Driver {
	case "", model.DriverSQLite:
		path := rc.SQLitePath
		if path == "" {
			path = model.DefaultDataPath()
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		t, err := sqlite.Open(path, log)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil

	case model.DriverPostgres:
		t, err := postgres.Open(ctx, rc.PostgresDSN, log)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil

	case model.DriverREST:
		key, err := a.secret(credential.KeyRemoteAPIKey, apiKeyEnv)
		if err != nil {
			return nil, nil, err
		}
		t, err := rest.New(rest.Config{URL: rc.RESTURL, APIKey: key}, log)
		if err != nil {
			return nil, nil, err
		}
		return t, func() error { return nil }, nil

	case model.DriverMongo:
		t, err := mongo.Open(ctx, rc.MongoURI, rc.MongoDatabase, log)
		if err != nil {
			return nil, nil, err
		}
		return t, func() error { return t.Close(context.Background()) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown remote driver %q", rc.Driver)
	}
}

func (a *App) openRelay(ctx context.Context, url string, inner remote.Table) (*redisfeed.Relay, error) {
	log := a.Log.With().Str("component", "redisfeed").Logger()
	relay, err := redisfeed.Dial(ctx, url, a.Config.Feed.Channel, inner, log)
	if err != nil {
		return nil, fmt.Errorf("connecting change relay: %w", err)
	}
	return relay, nil
}

// secret returns the environment override or the keyring value for key.
// A missing secret is not an error; the backend decides whether it needs
// one.
func (a *App) secret(key, env string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	if a.Vault == nil {
		return "", nil
	}
	v, _, err := a.Vault.Lookup(key)
	if err != nil {
		return "", fmt.Errorf("reading %s from keyring: %w", key, err)
	}
	return v, nil
}

// CSVSource returns the import source for a local path or an
// s3://bucket/key URL.
func (a *App) CSVSource(ctx context.Context, location string) (importer.Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("import location is empty")
	}
	if importer.IsS3URL(location) {
		bucket, key, err := importer.ParseS3URL(location)
		if err != nil {
			return nil, err
		}
		return importer.NewS3Source(ctx, a.Config.Import.S3, bucket, key)
	}
	return importer.FileSource{Path: location}, nil
}

// InboxSource returns the configured IMAP inquiry mailbox.
func (a *App) InboxSource() (*inbox.Source, error) {
	cfg := a.Config.Inbox
	if cfg.Host == "" || cfg.Username == "" {
		return nil, fmt.Errorf("inbox host and username must be configured")
	}
	password, err := a.secret(credential.KeyInboxPassword, inboxPasswordEnv)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &importer.AuthError{Kind: importer.KindInbox, Message: "no inbox password stored"}
	}
	return inbox.New(cfg, password), nil
}

// Import fetches src and adds the accepted leads in one bulk write.
func (a *App) Import(ctx context.Context, src importer.Source) (importer.Result, int, error) {
	if a.Store == nil {
		return importer.Result{}, 0, ErrNotConnected
	}
	records, err := src.Fetch(ctx)
	if err != nil {
		return importer.Result{}, 0, fmt.Errorf("fetching %s import: %w", src.Kind(), err)
	}
	res := importer.ProcessImportedData(records)
	added := 0
	if len(res.Leads) > 0 {
		added = a.Store.AddBulk(ctx, res.Leads)
	}
	a.Log.Info().
		Str("source", string(src.Kind())).
		Int("records", len(records)).
		Int("accepted", len(res.Leads)).
		Int("skipped", res.Skipped).
		Int("added", added).
		Msg("import finished")
	return res, added, nil
}
