package telemetry_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robalyx/rolesync/internal/setup/config"
	"github.com/robalyx/rolesync/internal/setup/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerGetLoggers(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	manager := telemetry.NewManager(telemetry.ServiceWorker, logDir, &config.Debug{
		LogLevel:      "debug",
		MaxLogsToKeep: 3,
	})

	logger, dbLogger, err := manager.GetLoggers()
	require.NoError(t, err)

	logger.Info("main entry")
	dbLogger.Info("db entry")
	_ = logger.Sync()
	_ = dbLogger.Sync()

	sessionDir := manager.GetCurrentSessionDir()
	assert.FileExists(t, filepath.Join(sessionDir, "main.log"))
	assert.FileExists(t, filepath.Join(sessionDir, "database.log"))
	assert.NotEmpty(t, manager.GetInstanceID())

	workerLogger := manager.GetWorkerLogger("role_sync")
	workerLogger.Info("worker entry")
	assert.FileExists(t, filepath.Join(sessionDir, "role_sync.log"))
}

func TestManagerInvalidLevel(t *testing.T) {
	t.Parallel()

	manager := telemetry.NewManager(telemetry.ServiceWorker, t.TempDir(), &config.Debug{
		LogLevel:      "loud",
		MaxLogsToKeep: 3,
	})

	_, _, err := manager.GetLoggers()
	require.Error(t, err)
}

func TestManagerRotatesSessions(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	for i := range 5 {
		dir := filepath.Join(logDir, "old_"+string(rune('a'+i)))
		require.NoError(t, os.MkdirAll(dir, os.ModePerm))
		stamp := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(dir, stamp, stamp))
	}

	manager := telemetry.NewManager(telemetry.ServiceWorker, logDir, &config.Debug{
		LogLevel:      "info",
		MaxLogsToKeep: 3,
	})

	_, _, err := manager.GetLoggers()
	require.NoError(t, err)

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// The oldest sessions are removed first
	assert.NoDirExists(t, filepath.Join(logDir, "old_a"))
	assert.DirExists(t, filepath.Join(logDir, "old_e"))
}
