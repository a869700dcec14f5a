package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitesafe/hsetrack/internal/datastore"
	"github.com/sitesafe/hsetrack/internal/datastore/entities"
)

// NewSQLiteManager opens an initialized SQLite database in a temp dir. It
// is closed when the test ends.
func NewSQLiteManager(t *testing.T) *datastore.SQLiteManager {
	t.Helper()
	mgr, err := datastore.NewSQLiteManager(&datastore.SQLiteConfig{Path: filepath.Join(t.TempDir(), "hse.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

// NewFindingRepository returns a repository over a fresh SQLite database.
func NewFindingRepository(t *testing.T) datastore.FindingRepository {
	t.Helper()
	return datastore.NewFindingRepository(NewSQLiteManager(t).DB(), nil)
}

// CreateFinding stores a valid finding in category and returns it.
func CreateFinding(t *testing.T, repo datastore.FindingRepository, category string) *entities.Finding {
	t.Helper()
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	f := &entities.Finding{
		OccurredAt:        day,
		Location:          "Warehouse A",
		Source:            "Inspection",
		Description:       "Frayed cable",
		HazardCategory:    category,
		RiskLevel:         "Medium",
		RemediationAction: "Replace cable",
		ResponsibleParty:  "Maintenance",
		DueDate:           day.AddDate(0, 0, 7),
	}
	require.NoError(t, repo.Create(context.Background(), f))
	return f
}
