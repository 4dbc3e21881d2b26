package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/api"
	"github.com/hackgods/telehealth-scheduling/internal/availability"
	"github.com/hackgods/telehealth-scheduling/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Env:             "test",
		Storage:         config.StorageMemory,
		LockBackend:     config.LockLocal,
		DefaultTimezone: "Europe/Amsterdam",
		PendingTimeout:  30 * time.Minute,
		CancelCutoff:    2 * time.Hour,
		LockTTL:         5 * time.Second,
		LockAcquire:     time.Second,
		StorageTimeout:  time.Second,
		ScheduleCache:   time.Minute,
		WorkerInterval:  time.Minute,
		HookWorkers:     1,
		HookQueueSize:   8,
	}
}

func TestBuildInMemory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a, err := Build(context.Background(), memoryConfig(), logger)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(context.Background())) }()

	assert.Nil(t, a.Pool)
	assert.Nil(t, a.Redis)

	rc := a.RouterConfig("v-test")
	assert.Nil(t, rc.Postgres)
	assert.Nil(t, rc.Redis)

	doctor := uuid.New()
	saved, err := a.Schedules.SaveProfile(context.Background(), availability.DefaultProfile(doctor, ""))
	require.NoError(t, err)
	assert.Equal(t, "UTC", saved.Timezone)

	rec := httptest.NewRecorder()
	api.NewRouter(rc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/doctors/"+doctor.String()+"/profile", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	api.NewRouter(rc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubscribersFollowConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := memoryConfig()

	names := func(cfg config.Config) []string {
		var out []string
		for _, s := range subscribers(cfg, nil, logger) {
			out = append(out, s.Name())
		}
		return out
	}
	assert.Equal(t, []string{"log", "payment"}, names(cfg))

	cfg.SMTP = config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "clinic@example.com"}
	cfg.PushEnabled = true
	assert.Equal(t, []string{"log", "payment", "email", "push"}, names(cfg))
}
