package core_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/rolesync/internal/redis"
	"github.com/robalyx/rolesync/internal/setup/config"
	"github.com/robalyx/rolesync/internal/worker/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisClient(t *testing.T) (rueidis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	manager := redis.NewManager(&config.Redis{Host: mr.Host(), Port: port}, zap.NewNop())
	t.Cleanup(manager.Close)

	client, err := manager.GetClient(redis.WorkerStatusDBIndex)
	require.NoError(t, err)

	return client, mr
}

func TestMonitorReportAndList(t *testing.T) {
	t.Parallel()

	client, mr := newRedisClient(t)
	monitor := core.NewMonitor(client, zap.NewNop())

	require.NoError(t, monitor.ReportStatus(t.Context(), core.Status{
		WorkerID: "b", WorkerType: "rolesync", CurrentTask: "Idle", IsHealthy: true,
	}))
	require.NoError(t, monitor.ReportStatus(t.Context(), core.Status{
		WorkerID: "a", WorkerType: "rolesync", CurrentTask: "Syncing guilds", Progress: 40, IsHealthy: true,
	}))

	assert.Equal(t, core.HeartbeatTTL, mr.TTL("worker:rolesync:a"))

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].WorkerID)
	assert.Equal(t, 40, statuses[0].Progress)
	assert.Equal(t, "b", statuses[1].WorkerID)
	assert.False(t, statuses[0].IsStale(time.Now()))
	assert.True(t, statuses[0].IsStale(time.Now().Add(2*core.StaleThreshold)))
}

func TestStatusReporter(t *testing.T) {
	t.Parallel()

	client, _ := newRedisClient(t)
	reporter := core.NewStatusReporter(client, "rolesync", zap.NewNop())

	reporter.UpdateStatus("Syncing guilds", 50)
	reporter.SetHealthy(false)
	reporter.Start(t.Context())
	reporter.Start(t.Context())
	defer reporter.Stop()

	monitor := core.NewMonitor(client, zap.NewNop())
	require.Eventually(t, func() bool {
		statuses, err := monitor.GetAllStatuses(t.Context())
		return err == nil && len(statuses) == 1
	}, 2*time.Second, 10*time.Millisecond)

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	assert.Equal(t, reporter.GetWorkerID(), statuses[0].WorkerID)
	assert.Equal(t, "Syncing guilds", statuses[0].CurrentTask)
	assert.Equal(t, 50, statuses[0].Progress)
	assert.False(t, statuses[0].IsHealthy)

	reporter.Stop()
	reporter.Stop()
}
