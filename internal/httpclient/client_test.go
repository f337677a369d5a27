package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-harvester/internal/crawler"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestClient(cfg Config, sleeper *recordingSleeper) *Client {
	opts := []Option{WithLabel("TEST")}
	if sleeper != nil {
		opts = append(opts, WithSleeper(sleeper.sleep))
	}
	return New(cfg, zap.NewNop(), opts...)
}

// dropConnection closes the TCP connection without writing a response.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	t.Helper()
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, _, err := hj.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestClientDo_OK(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `{"data":[{"id":1}]}`)
	}))
	defer srv.Close()

	c := newTestClient(Config{}, nil)
	defer c.Close()

	res, err := c.Do(context.Background(), Get(srv.URL).WithQuery(url.Values{"limit": {"20"}}))
	require.NoError(t, err)
	require.Equal(t, KindOK, res.Kind())
	resp, ok := res.Response()
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Data []struct {
			ID int `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, resp.DecodeJSON(&payload))
	require.Len(t, payload.Data, 1)

	_, isSkip := res.Skip()
	assert.False(t, isSkip)
}

func TestClientDo_SoftSkipStatuses(t *testing.T) {
	t.Parallel()

	for _, code := range []int{http.StatusFound, http.StatusNotFound, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			t.Parallel()
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				if code == http.StatusFound {
					w.Header().Set("Location", "/removed")
				}
				w.WriteHeader(code)
			}))
			defer srv.Close()

			c := newTestClient(Config{}, nil)
			defer c.Close()

			res, err := c.Do(context.Background(), Get(srv.URL))
			require.NoError(t, err)
			require.Equal(t, KindSkip, res.Kind())
			skip, ok := res.Skip()
			require.True(t, ok)
			assert.Equal(t, code, skip.StatusCode)
			_, hasBody := res.Response()
			assert.False(t, hasBody)
			assert.Equal(t, int32(1), hits.Load(), "skips are neither retried nor followed")
			if code == http.StatusFound {
				assert.Equal(t, "/removed", skip.Location)
			}
		})
	}
}

func TestClientDo_FatalStatusIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	c := newTestClient(Config{}, sleeper)
	defer c.Close()

	_, err := c.Do(context.Background(), Get(srv.URL))
	require.Error(t, err)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, fatal.Attempts)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, sleeper.waits)
}

func TestClientDo_RetriesTransientFaults(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			dropConnection(t, w)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	c := newTestClient(Config{}, sleeper)
	defer c.Close()

	res, err := c.Do(context.Background(), Get(srv.URL))
	require.NoError(t, err)
	resp, ok := res.Response()
	require.True(t, ok)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.waits)
}

func TestClientDo_RetryExhaustion(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		dropConnection(t, w)
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	c := newTestClient(Config{MaxAttempts: 5}, sleeper)
	defer c.Close()

	_, err := c.Do(context.Background(), Get(srv.URL))
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 5, fatal.Attempts)
	assert.Equal(t, srv.URL, fatal.URL)
	assert.Equal(t, int32(5), hits.Load())
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, sleeper.waits)
}

func TestClientDo_GateBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var current, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := newTestClient(Config{Concurrency: 2}, nil)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Do(context.Background(), Get(srv.URL))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestClientDo_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		dropConnection(t, w)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(Config{}, nil)
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	defer c.Close()

	_, err := c.Do(ctx, Get(srv.URL))
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, fatal.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientDo_FormAndJSONBodies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/form":
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "52323189", r.PostForm.Get("rec_idx"))
			assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		case "/json":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.EqualValues(t, 3, body["page"])
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := newTestClient(Config{}, nil)
	defer c.Close()

	base := PostForm(srv.URL+"/form", url.Values{"rec_idx": {"52323189"}})
	_, err := c.Do(context.Background(), base.WithHeader("X-Requested-With", "XMLHttpRequest"))
	require.NoError(t, err)
	assert.Nil(t, base.Header, "builders copy instead of mutating")

	_, err = c.Do(context.Background(), PostJSON(srv.URL+"/json", map[string]int{"page": 3}))
	require.NoError(t, err)
}

func TestClientFetch_SkipWrapsSentinel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(Config{}, nil)
	defer c.Close()

	_, err := c.Fetch(context.Background(), Get(srv.URL))
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrSkipped))
	assert.False(t, IsFatal(err))
}
