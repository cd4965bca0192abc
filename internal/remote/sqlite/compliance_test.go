package sqlite

import (
	"testing"

	"github.com/nhle/travel-crm/internal/remote"
	"github.com/nhle/travel-crm/internal/remote/remotetest"
)

func TestSQLiteTable_Compliance(t *testing.T) {
	remotetest.Run(t, func(t *testing.T) remote.Table {
		return openTestTable(t)
	})
}
