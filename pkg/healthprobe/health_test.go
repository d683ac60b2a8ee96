package healthprobe

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func serve(t *testing.T, h http.HandlerFunc) (int, HealthResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return rec.Code, resp
}

func TestNew(t *testing.T) {
	hc := New()

	if time.Since(hc.startTime) > time.Second {
		t.Errorf("start time is too old: %v", hc.startTime)
	}
	if hc.ready.Load() {
		t.Error("HealthChecker should not be ready by default")
	}
}

func TestHealth_AlwaysReturnsOK(t *testing.T) {
	hc := New()
	hc.Register("feed", func() error { return errors.New("down") })

	for _, ready := range []bool{false, true} {
		hc.SetReady(ready)

		code, resp := serve(t, hc.Health())
		if code != http.StatusOK {
			t.Errorf("ready=%v: status = %d, want 200", ready, code)
		}
		if resp.Status != "healthy" || resp.Uptime == "" {
			t.Errorf("ready=%v: response = %+v", ready, resp)
		}
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		checkErr   error
		wantCode   int
		wantStatus string
	}{
		{name: "starting", ready: false, wantCode: http.StatusServiceUnavailable, wantStatus: "not_ready"},
		{name: "ready", ready: true, wantCode: http.StatusOK, wantStatus: "ready"},
		{
			name:       "check_failing",
			ready:      true,
			checkErr:   errors.New("websocket disconnected"),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := New()
			hc.SetReady(tt.ready)
			hc.Register("feed", func() error { return tt.checkErr })
			hc.Register("storage", func() error { return nil })

			code, resp := serve(t, hc.Ready())
			if code != tt.wantCode {
				t.Errorf("status code = %d, want %d", code, tt.wantCode)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if tt.checkErr != nil && resp.Failing["feed"] != tt.checkErr.Error() {
				t.Errorf("failing = %v, want feed", resp.Failing)
			}
			if _, ok := resp.Failing["storage"]; ok {
				t.Error("healthy check reported as failing")
			}
		})
	}
}

func TestFailing_SortedNames(t *testing.T) {
	hc := New()
	hc.Register("b", func() error { return errors.New("x") })
	hc.Register("a", func() error { return errors.New("y") })
	hc.Register("c", func() error { return nil })

	got := hc.Failing()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Failing() = %v, want [a b]", got)
	}

	hc.Register("a", func() error { return nil })
	if got := hc.Failing(); len(got) != 1 {
		t.Errorf("Failing() after replace = %v, want [b]", got)
	}
}

func TestHealthChecker_ConcurrentAccess(t *testing.T) {
	hc := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			hc.SetReady(i%2 == 0)
			hc.Register("check", func() error { return nil })
		}(i)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			hc.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		}()
	}
	wg.Wait()
}
