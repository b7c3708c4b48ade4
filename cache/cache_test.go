package cache

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return c
}

func TestURLToPath(t *testing.T) {
	c := newTestCache(t)

	path := c.URLToPath("https://www.sec.gov/Archives/edgar/data/aapl-20200926.htm")
	assert.Equal(t, filepath.Join(c.Root(), "www.sec.gov", "Archives", "edgar", "data", "aapl-20200926.htm"), path)

	// http and https map onto the same mirror path.
	assert.Equal(t, path, c.URLToPath("http://www.sec.gov/Archives/edgar/data/aapl-20200926.htm"))
}

func TestGetCachesAndSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("schema body"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	url := srv.URL + "/taxonomy/base.xsd"

	path, err := c.Get(context.Background(), url)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// Second get returns byte-identical content without a network request.
	path2, err := c.Get(context.Background(), url)
	require.NoError(t, err)
	second, err := os.ReadFile(path2)
	require.NoError(t, err)

	assert.Equal(t, path, path2)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetInjectsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ExampleBot/1.0 (example.com)", r.Header.Get("User-Agent"))
		assert.Equal(t, "pete.smith@example.com", r.Header.Get("From"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	c.SetHeaders(map[string]string{
		"User-Agent": "ExampleBot/1.0 (example.com)",
		"From":       "pete.smith@example.com",
	})

	_, err := c.Get(context.Background(), srv.URL+"/file.xml")
	require.NoError(t, err)
}

func TestGetRetriesOn5xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("eventually"))
	}))
	defer srv.Close()

	c := newTestCache(t, WithRetries(5), WithBackoffFactor(0.001))

	data, err := c.GetBytes(context.Background(), srv.URL+"/flaky.xml")
	require.NoError(t, err)
	assert.Equal(t, "eventually", string(data))
	assert.Equal(t, int32(3), hits.Load())
}

func TestGet4xxIsFatalWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestCache(t, WithRetries(5), WithBackoffFactor(0.001))

	_, err := c.Get(context.Background(), srv.URL+"/missing.xsd")
	require.Error(t, err)

	var rfe *RemoteFetchError
	require.ErrorAs(t, err, &rfe)
	assert.Equal(t, http.StatusNotFound, rfe.Status)
	assert.Equal(t, int32(1), hits.Load())

	// A failed download leaves no partial file behind.
	_, statErr := os.Stat(c.URLToPath(srv.URL + "/missing.xsd"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGetExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCache(t, WithRetries(2), WithBackoffFactor(0.001))

	_, err := c.Get(context.Background(), srv.URL+"/always500.xml")
	var rfe *RemoteFetchError
	require.ErrorAs(t, err, &rfe)
	assert.Equal(t, http.StatusInternalServerError, rfe.Status)
}

func TestDelayGapBetweenFetches(t *testing.T) {
	var stamps []time.Time
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	const delay = 80 * time.Millisecond
	c := newTestCache(t, WithDelay(delay))

	_, err := c.Get(context.Background(), srv.URL+"/a.xml")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), srv.URL+"/b.xml")
	require.NoError(t, err)

	require.Len(t, stamps, 2)
	gap := stamps[1].Sub(stamps[0])
	assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond, "gap %v below configured delay", gap)
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte("slow body"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	url := srv.URL + "/shared.xml"

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), url)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestGetCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, srv.URL+"/cancelled.xml")
	require.Error(t, err)
}

func TestPurge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	url := srv.URL + "/p.xml"

	assert.False(t, c.Purge(url))
	_, err := c.Get(context.Background(), url)
	require.NoError(t, err)
	assert.True(t, c.Purge(url))
	assert.False(t, c.Purge(url))
}

func TestCacheEnclosure(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"aapl-20200926.htm": "<html/>",
		"aapl-20200926.xsd": "<schema/>",
	} {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".zip") {
			w.Write(buf.Bytes())
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestCache(t)

	dir, err := c.CacheEnclosure(context.Background(), srv.URL+"/Archives/edgar/data/320193/submission.zip")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "aapl-20200926.htm"))
	require.NoError(t, err)
	assert.Equal(t, "<html/>", string(data))

	// Members land at their mirrored URL paths.
	assert.FileExists(t, c.URLToPath(srv.URL+"/Archives/edgar/data/320193/aapl-20200926.xsd"))
}

func TestCacheEnclosureRejectsNonZip(t *testing.T) {
	c := newTestCache(t)
	_, err := c.CacheEnclosure(context.Background(), "https://example.com/filing.htm")
	require.Error(t, err)
}

func TestNewEphemeral(t *testing.T) {
	c, err := NewEphemeral()
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(c.Root()) })
	assert.DirExists(t, c.Root())
}
