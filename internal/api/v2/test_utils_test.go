package api

import (
	"context"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sitesafe/hsetrack/internal/access"
	"github.com/sitesafe/hsetrack/internal/attachments"
	"github.com/sitesafe/hsetrack/internal/buildinfo"
	"github.com/sitesafe/hsetrack/internal/datastore"
	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/findings"
	"github.com/sitesafe/hsetrack/internal/reporting"
	"github.com/sitesafe/hsetrack/internal/testutil"
	"github.com/sitesafe/hsetrack/internal/verification"
)

const testSecret = "api-test-secret-0123456789abcdef"

// MockFindingRepository is a testify mock of datastore.FindingRepository
// for failure paths a real database cannot easily produce.
type MockFindingRepository struct {
	mock.Mock
}

func (m *MockFindingRepository) Create(ctx context.Context, f *entities.Finding) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFindingRepository) List(ctx context.Context, filter datastore.ListFilter) ([]entities.Finding, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]entities.Finding)
	return list, args.Error(1)
}

func (m *MockFindingRepository) ListVerified(ctx context.Context) ([]entities.Finding, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]entities.Finding)
	return list, args.Error(1)
}

func (m *MockFindingRepository) GetByID(ctx context.Context, id uint) (*entities.Finding, error) {
	args := m.Called(ctx, id)
	f, _ := args.Get(0).(*entities.Finding)
	return f, args.Error(1)
}

func (m *MockFindingRepository) Exists(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockFindingRepository) Decide(ctx context.Context, id uint, d datastore.Decision) (*entities.Finding, error) {
	args := m.Called(ctx, id, d)
	f, _ := args.Get(0).(*entities.Finding)
	return f, args.Error(1)
}

func (m *MockFindingRepository) SetStatus(ctx context.Context, id uint, status entities.FindingStatus) (*entities.Finding, error) {
	args := m.Called(ctx, id, status)
	f, _ := args.Get(0).(*entities.Finding)
	return f, args.Error(1)
}

func (m *MockFindingRepository) AddAttachment(ctx context.Context, a *entities.Attachment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockFindingRepository) ListAttachments(ctx context.Context, findingID uint) ([]entities.Attachment, error) {
	args := m.Called(ctx, findingID)
	list, _ := args.Get(0).([]entities.Attachment)
	return list, args.Error(1)
}

type testEnv struct {
	echo       *echo.Echo
	controller *Controller
	repo       datastore.FindingRepository
	uploadRoot string
}

// setupTestEnvironment wires the controller over repo. A nil repo gets a
// fresh SQLite database.
func setupTestEnvironment(t *testing.T, repo datastore.FindingRepository) *testEnv {
	t.Helper()
	return setupTestEnvironmentWithStore(t, repo, attachments.StoreConfig{})
}

// setupTestEnvironmentWithStore is setupTestEnvironment with custom upload
// limits. The upload root is always a temp dir.
func setupTestEnvironmentWithStore(t *testing.T, repo datastore.FindingRepository, cfg attachments.StoreConfig) *testEnv {
	t.Helper()

	if repo == nil {
		repo = testutil.NewFindingRepository(t)
	}

	uploadRoot := t.TempDir()
	cfg.Root = uploadRoot
	store, err := attachments.NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	agg := reporting.NewAggregator(repo, time.Minute, nil)
	verifier, err := access.NewJWTVerifier(testSecret, "", 0)
	require.NoError(t, err)
	gate := access.NewGate(verifier, nil)

	e := echo.New()
	c, err := New(e, Services{
		Findings:   findings.NewService(repo, findings.WithOnChange(agg.Invalidate)),
		Verifier:   verification.NewEngine(repo, verification.WithOnChange(agg.Invalidate)),
		Uploader:   attachments.NewUploader(repo, store, attachments.WithWorkers(2)),
		Aggregator: agg,
	}, WithAuthMiddleware(gate.Authenticate), WithBuildInfo(&buildinfo.Context{Version: "test"}))
	require.NoError(t, err)

	return &testEnv{echo: e, controller: c, repo: repo, uploadRoot: uploadRoot}
}

func bearer(t *testing.T, id string, role access.Role) string {
	t.Helper()
	token, err := access.SignToken(testSecret, "", access.Actor{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}
