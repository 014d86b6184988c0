package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func siteRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body><p>hi</p></body></html>"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "style.css"), []byte("body{}"), 0644))
	return root
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func TestHandlerInjectsReloadScript(t *testing.T) {
	srv := httptest.NewServer(newHandler(siteRoot(t), newHub(zaptest.NewLogger(t))))
	defer srv.Close()

	res, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `new WebSocket("ws://"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "</script>\n</body></html>"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", res.Header.Get("Cache-Control"))

	res, body = get(t, srv.URL+"/css/style.css")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "body{}", body)

	res, body = get(t, srv.URL+"/missing.html")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.NotContains(t, body, "WebSocket")
}

func TestHubBroadcast(t *testing.T) {
	hub := newHub(zaptest.NewLogger(t))
	srv := httptest.NewServer(newHandler(t.TempDir(), hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.size() == 1 }, time.Second, 10*time.Millisecond)

	hub.broadcastMessage([]byte("reload"))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, "reload", string(msg))

	conn.Close()
	require.Eventually(t, func() bool { return hub.size() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWatcherRelevance(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "drafts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "site.yaml"), nil, 0644))

	w, err := newWatcher(root, []string{"docs", "site.yaml", "missing"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.relevant(filepath.Join(root, "site.yaml")))
	assert.True(t, w.relevant(filepath.Join(root, "docs", "a.md")))
	assert.True(t, w.relevant(filepath.Join(root, "docs", "drafts", "b.md")))
	assert.False(t, w.relevant(filepath.Join(root, "index.html")))
	assert.False(t, w.relevant(filepath.Join(root, "page", "a.html")))
}

func TestWatcherRebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))

	w, err := newWatcher(root, []string{"docs"}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	var builds atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.loop(ctx, newHub(zap.NewNop()), func(context.Context) error {
		builds.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.md"), []byte("# A\nB\n"), 0644))
	require.Eventually(t, func() bool { return builds.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherBuildsLastChange(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))
	article := filepath.Join(docs, "a.md")

	w, err := newWatcher(root, []string{"docs"}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	var builds atomic.Int32
	var seen atomic.Value
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.loop(ctx, newHub(zap.NewNop()), func(context.Context) error {
		b, err := os.ReadFile(article)
		if err != nil {
			return err
		}
		seen.Store(string(b))
		builds.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(article, []byte("v1"), 0644))
	require.Eventually(t, func() bool { return builds.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(article, []byte("v2"), 0644))

	require.Eventually(t, func() bool {
		v, _ := seen.Load().(string)
		return v == "v2"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))

	w, err := newWatcher(root, []string{"docs"}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()
	w.debounce = 400 * time.Millisecond

	var builds atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.loop(ctx, newHub(zap.NewNop()), func(context.Context) error {
		builds.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(docs, "a.md"), []byte{byte('a' + i)}, 0644))
		time.Sleep(20 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return builds.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, int32(1), builds.Load())
}

func TestRunFailsOnInitialBuild(t *testing.T) {
	err := Run(context.Background(), Options{Root: t.TempDir()}, func(context.Context) error {
		return assert.AnError
	}, nil)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "initial build failed")
}
