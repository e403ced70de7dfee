package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status struct {
	Status string
	Checks map[string]string
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) status {
	t.Helper()
	var s status
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, k string) error {
		switch k {
		case "status":
			v, err := d.Str()
			s.Status = v
			return err
		case "checks":
			s.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				v, err := d.Str()
				s.Checks[name] = v
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return s
}

func pass(context.Context) error { return nil }

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func serve(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		w := serve(New().LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("below failure threshold", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("flaky", time.Second, fail("temporary"))
		h.live[0].poll(context.Background())
		h.live[0].poll(context.Background())

		assert.Equal(t, http.StatusOK, serve(h.LiveEndpoint, "/livez").Code)
	})

	t.Run("failing", func(t *testing.T) {
		h := New()
		h.AddLivenessCheck("goroutines", time.Second, fail("too many"))
		for range 3 {
			h.live[0].poll(context.Background())
		}

		w := serve(h.LiveEndpoint, "/livez")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		s := decodeStatus(t, w)
		assert.Equal(t, "unhealthy", s.Status)
		assert.Equal(t, map[string]string{"goroutines": "too many"}, s.Checks)
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("gate closed", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("storage", time.Second, pass)

		w := serve(h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, decodeStatus(t, w).Checks, NotReadyCheck)
	})

	t.Run("ready", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("storage", time.Second, pass)
		h.SetReady(true)

		w := serve(h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decodeStatus(t, w).Status)

		h.SetReady(false)
		assert.Equal(t, http.StatusServiceUnavailable, serve(h.ReadyEndpoint, "/readyz").Code)
	})

	t.Run("one dependency down", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("storage", time.Second, pass)
		h.AddReadinessCheck("redis", time.Second, PingCheck(pinger{err: errors.New("connection refused")}))
		h.SetReady(true)
		for range 3 {
			h.readyz[1].poll(context.Background())
		}

		w := serve(h.ReadyEndpoint, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		s := decodeStatus(t, w)
		assert.Equal(t, map[string]string{"redis": "ping: connection refused"}, s.Checks)
		assert.False(t, h.IsReady())
	})
}

func TestProbe_Thresholds(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	h := New()
	h.AddLiveness(Check{
		Name: "flaky",
		Func: func(context.Context) error {
			if failing.Load() {
				return errors.New("down")
			}
			return nil
		},
		FailureThreshold: 2,
		SuccessThreshold: 2,
	})
	p := h.live[0]
	ctx := context.Background()

	assert.Equal(t, defaultTimeout, p.Timeout)
	assert.NoError(t, p.err())

	p.poll(ctx)
	assert.True(t, p.healthy.Load())
	p.poll(ctx)
	assert.False(t, p.healthy.Load())
	assert.EqualError(t, p.err(), "down")

	failing.Store(false)
	p.poll(ctx)
	assert.False(t, p.healthy.Load(), "one pass is below the success threshold")
	p.poll(ctx)
	assert.True(t, p.healthy.Load())
}

func TestProbe_Timeout(t *testing.T) {
	h := New()
	h.AddLiveness(Check{
		Name:             "slow",
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.live[0].poll(context.Background())

	assert.ErrorIs(t, h.live[0].err(), context.DeadlineExceeded)
	assert.False(t, h.live[0].healthy.Load())
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddReadinessCheck("storage", time.Second, fail("unreachable"))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, fail("err"))
	h.AddReadinessCheck("ready", time.Second, pass)
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				serve(h.LiveEndpoint, "/livez")
				serve(h.ReadyEndpoint, "/readyz")
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
	assert.NoError(t, PingCheck(pinger{})(ctx))
}
