//go:build !unix

package reactor

import (
	"go.uber.org/zap"

	"github.com/wippyai/fibre-go/native"
)

// fd readiness needs poll(2); other platforms accept registrations but never
// report readiness.
type watcher struct {
	loop *Loop
	fd   int
}

func newWatcher(l *Loop, fd int, mask native.EventMask, fn func()) *watcher {
	return &watcher{loop: l, fd: fd}
}

func (w *watcher) close() {}

func (w *watcher) run() {
	w.loop.log.Warn("fd readiness is not supported on this platform", zap.Int("fd", w.fd))
}
