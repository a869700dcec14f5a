package datastore

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/errors"
)

// getMySQLConfig returns MySQL config from environment variables.
// Returns nil if MySQL is not configured for testing.
func getMySQLConfig() *MySQLConfig {
	host := os.Getenv("MYSQL_TEST_HOST")
	if host == "" {
		return nil
	}

	port := 3306
	if p, err := strconv.Atoi(os.Getenv("MYSQL_TEST_PORT")); err == nil {
		port = p
	}

	return &MySQLConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("MYSQL_TEST_USER"),
		Password: os.Getenv("MYSQL_TEST_PASSWORD"),
		Database: os.Getenv("MYSQL_TEST_DATABASE"),
	}
}

// mysqlForTest returns a MySQL config from MYSQL_TEST_* variables, or starts
// a throwaway container when HSE_TEST_MYSQL_CONTAINER=1. Otherwise the test
// is skipped.
func mysqlForTest(t *testing.T) *MySQLConfig {
	t.Helper()

	if cfg := getMySQLConfig(); cfg != nil {
		return cfg
	}
	if os.Getenv("HSE_TEST_MYSQL_CONTAINER") != "1" {
		t.Skip("MySQL not configured. Set MYSQL_TEST_HOST (and _USER, _PASSWORD, _DATABASE) or HSE_TEST_MYSQL_CONTAINER=1 to enable.")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcmysql.Run(ctx, "mysql:8.4",
		tcmysql.WithDatabase("hsetrack"),
		tcmysql.WithUsername("hse"),
		tcmysql.WithPassword("hse-test"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	return &MySQLConfig{
		Host:     host,
		Port:     port.Int(),
		Username: "hse",
		Password: "hse-test",
		Database: "hsetrack",
	}
}

func TestMySQLConfigDSN(t *testing.T) {
	t.Parallel()

	cfg := &MySQLConfig{Host: "db.internal", Port: 3307, Username: "hse", Password: "p@ss", Database: "hsetrack"}
	dsn := cfg.DSN()

	assert.Contains(t, dsn, "hse:p@ss@tcp(db.internal:3307)/hsetrack")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestMySQLFindingLifecycle(t *testing.T) {
	cfg := mysqlForTest(t)

	mgr, err := NewMySQLManager(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Initialize())
	require.True(t, mgr.IsMySQL())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, mgr.Ping(ctx))

	repo := NewFindingRepository(mgr.DB(), nil)

	f := sampleFinding("2026-05-05", "fire")
	require.NoError(t, repo.Create(ctx, f))
	t.Cleanup(func() { mgr.DB().Delete(&entities.Finding{}, f.ID) })

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-05", got.OccurredAt.Format(time.DateOnly))

	require.NoError(t, repo.AddAttachment(ctx, &entities.Attachment{FindingID: f.ID, FilePath: "/uploads/temuan/a-1.jpg"}))
	err = repo.AddAttachment(ctx, &entities.Attachment{FindingID: f.ID + 100000, FilePath: "/uploads/temuan/x.jpg"})
	assert.True(t, errors.IsNotFound(err))

	const racers = 6
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := range racers {
		wg.Go(func() {
			_, err := repo.Decide(ctx, f.ID, decision(entities.VerificationVerified, "admin-"+strconv.Itoa(i)))
			results <- err
		})
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.IsConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, racers-1, conflicts)
}
