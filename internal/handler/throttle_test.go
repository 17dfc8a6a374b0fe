package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"maxxpharm/internal/metrics"

	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleIsPerUser(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(registry)
	th := newThrottle(1, collector)

	for i := 0; i < th.burst; i++ {
		assert.True(t, th.allow(1))
	}
	assert.False(t, th.allow(1))
	assert.True(t, th.allow(2), "other users keep their own budget")

	expected := `
# HELP bot_throttled_updates_total Total number of updates dropped by the per-user rate limit
# TYPE bot_throttled_updates_total counter
bot_throttled_updates_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "bot_throttled_updates_total"))
}

func TestUpdateSender(t *testing.T) {
	assert.Equal(t, int64(5), updateSender(&models.Update{Message: &models.Message{From: &models.User{ID: 5}}}))
	assert.Equal(t, int64(6), updateSender(&models.Update{CallbackQuery: &models.CallbackQuery{From: models.User{ID: 6}}}))
	assert.Equal(t, int64(0), updateSender(&models.Update{}))
}

func TestThrottlePrunesIdleUsers(t *testing.T) {
	th := newThrottle(1, metrics.NewCollectorWithRegistry(prometheus.NewRegistry()))

	for i := 0; i < th.burst; i++ {
		th.allow(1)
	}
	th.allow(2)
	th.allow(3)
	th.limiters[1].lastSeen = time.Now().Add(-2 * time.Hour)
	th.limiters[2].lastSeen = time.Now().Add(-2 * time.Hour)

	assert.Equal(t, 2, th.prune(time.Hour))
	assert.Len(t, th.limiters, 1)
	assert.Contains(t, th.limiters, int64(3))
	assert.True(t, th.allow(1), "a pruned user starts with a full bucket")
}

func TestMaintenancePrunesLimiters(t *testing.T) {
	e := newTestEnv(t)
	e.h.throttle.allow(clientID)
	e.h.throttle.allow(adminID)
	e.h.throttle.limiters[clientID].lastSeen = time.Now().Add(-limiterIdleTTL - time.Minute)

	require.NoError(t, e.h.Maintenance(context.Background()))

	assert.NotContains(t, e.h.throttle.limiters, clientID)
	assert.Contains(t, e.h.throttle.limiters, adminID)
}
