// internal/server/server.go
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDuration is the quiet period after the last change before a rebuild.
const debounceDuration = 300 * time.Millisecond

// BuildFunc rebuilds the site served from the root directory.
type BuildFunc func(ctx context.Context) error

// Options configures the development server.
type Options struct {
	Root  string   // directory served over HTTP
	Port  int      // 0 picks a free port
	Watch []string // files and directories, relative to Root, that trigger a rebuild
}

// Run builds the site once, then serves Root with live reload and rebuilds
// whenever a watched path changes. It returns when ctx is cancelled.
func Run(ctx context.Context, opts Options, build BuildFunc, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := build(ctx); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}

	hub := newHub(log)
	w, err := newWatcher(opts.Root, opts.Watch, log)
	if err != nil {
		return err
	}
	defer w.Close()
	go w.loop(ctx, hub, build)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           newHandler(opts.Root, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving site", zap.String("url", fmt.Sprintf("http://localhost:%d", opts.Port)), zap.String("root", opts.Root))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newHandler(root string, hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})
	mux.Handle("/", liveReloadWrapper(http.FileServer(http.Dir(root))))
	return mux
}

// watcher follows whole directory trees plus single files. Single files are
// watched through their parent directory so that editors which save by
// rename are noticed; other events in that parent are ignored, which keeps
// the pages written by a build from triggering another one.
type watcher struct {
	*fsnotify.Watcher
	log      *zap.Logger
	debounce time.Duration
	added    map[string]bool
	trees    map[string]bool
	files    map[string]bool
}

func newWatcher(root string, paths []string, log *zap.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	w := &watcher{
		Watcher:  fw,
		log:      log,
		debounce: debounceDuration,
		added:    make(map[string]bool),
		trees:    make(map[string]bool),
		files:    make(map[string]bool),
	}

	for _, p := range paths {
		path := filepath.Clean(filepath.Join(root, p))
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("could not stat path %s: %w", path, err)
		}
		if info.IsDir() {
			if err := w.addTree(path); err != nil {
				fw.Close()
				return nil, fmt.Errorf("failed to watch directory %s: %w", path, err)
			}
			continue
		}
		w.files[path] = true
		w.add(filepath.Dir(path))
	}
	return w, nil
}

func (w *watcher) add(dir string) {
	if w.added[dir] {
		return
	}
	if err := w.Add(dir); err != nil {
		w.log.Warn("could not watch directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	w.log.Debug("watching directory", zap.String("dir", dir))
	w.added[dir] = true
}

func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			w.trees[path] = true
			w.add(path)
		}
		return nil
	})
}

// relevant reports whether a change to name should trigger a rebuild.
func (w *watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	return w.files[name] || w.trees[filepath.Dir(name)] || w.trees[name]
}

// loop rebuilds once changes have been quiet for the debounce period, so the
// last change of a burst always ends up in a build.
func (w *watcher) loop(ctx context.Context, hub *Hub, build BuildFunc) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	var changed string

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) && w.trees[filepath.Dir(filepath.Clean(event.Name))] {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(filepath.Clean(event.Name)); err != nil {
						w.log.Warn("could not watch new directory", zap.String("dir", event.Name), zap.Error(err))
					}
				}
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			changed = event.Name
			timer.Reset(w.debounce)
		case <-timer.C:
			w.log.Info("change detected, rebuilding", zap.String("path", changed))
			if err := build(ctx); err != nil {
				w.log.Error("rebuild failed", zap.Error(err))
				continue
			}
			w.log.Info("site rebuilt, reloading clients")
			hub.broadcastMessage([]byte("reload"))
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func liveReloadWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		isHTML := strings.HasSuffix(r.URL.Path, ".html") || strings.HasSuffix(r.URL.Path, "/")
		if !isHTML {
			next.ServeHTTP(w, r)
			return
		}

		iw := newInterceptingWriter(w)
		next.ServeHTTP(iw, r)

		for key, values := range iw.Header() {
			for _, value := range values {
				w.Header().Add(key, value)
			}
		}

		body := iw.body.Bytes()
		if iw.statusCode != http.StatusOK {
			w.WriteHeader(iw.statusCode)
			w.Write(body)
			return
		}

		injected := bytes.Replace(body, []byte("</body>"), []byte(liveReloadScript+"</body>"), 1)
		w.Header().Set("Content-Length", fmt.Sprint(len(injected)))
		w.WriteHeader(iw.statusCode)
		w.Write(injected)
	})
}

type interceptingWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	header     http.Header
}

func newInterceptingWriter(w http.ResponseWriter) *interceptingWriter {
	return &interceptingWriter{
		ResponseWriter: w,
		body:           new(bytes.Buffer),
		header:         make(http.Header),
		statusCode:     http.StatusOK,
	}
}

func (iw *interceptingWriter) Header() http.Header {
	return iw.header
}

func (iw *interceptingWriter) Write(b []byte) (int, error) {
	return iw.body.Write(b)
}

func (iw *interceptingWriter) WriteHeader(statusCode int) {
	iw.statusCode = statusCode
}

const liveReloadScript = `
<script>
  (function() {
    let socket = new WebSocket("ws://" + window.location.host + "/ws");
    socket.onmessage = function(event) {
      if (event.data === "reload") {
        window.location.reload();
      }
    };
    socket.onerror = function() {
      console.error("Live reload connection lost. Restart 'gitsite serve'.");
    };
  })();
</script>
`
