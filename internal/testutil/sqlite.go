// Package testutil opens a migrated SQLite store for package tests.
package testutil

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
	"go.uber.org/zap"
)

// Store bundles the repositories over one temporary database
type Store struct {
	DB            *sqlite.DB
	Employees     port.EmployeeRepository
	Reports       port.ReportRepository
	Workflows     port.WorkflowRepository
	History       port.HistoryRepository
	Notifications port.NotificationRepository
	Outbox        port.OutboxRepository
	Logger        *utils.KVLogger
}

// NewStore creates a fresh database file under t.TempDir and applies the
// embedded migrations
func NewStore(t testing.TB) *Store {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "expense.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.NewMigrator(db, logger).RunEmbedded(); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return &Store{
		DB:            sqlite.NewDB(db.DB, logger),
		Employees:     repository.NewEmployeeRepository(db.DB, logger),
		Reports:       repository.NewReportRepository(db.DB, logger),
		Workflows:     repository.NewWorkflowRepository(db.DB, logger),
		History:       repository.NewHistoryRepository(db.DB, logger),
		Notifications: repository.NewNotificationRepository(db.DB, logger),
		Outbox:        repository.NewOutboxRepository(db.DB, logger),
		Logger:        utils.NewKVLogger(logger),
	}
}

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start, truncated to seconds and in UTC
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC().Truncate(time.Second)}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
