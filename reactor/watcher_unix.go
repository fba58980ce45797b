//go:build unix

package reactor

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/fibre-go/native"
)

// pollIntervalMs bounds how long a watcher takes to notice deregistration.
const pollIntervalMs = 100

type watcher struct {
	loop   *Loop
	fn     func()
	stop   chan struct{}
	fd     int
	events int16
}

func newWatcher(l *Loop, fd int, mask native.EventMask, fn func()) *watcher {
	var events int16
	if mask&native.EventReadable != 0 {
		events |= unix.POLLIN
	}
	if mask&native.EventWritable != 0 {
		events |= unix.POLLOUT
	}
	return &watcher{
		loop:   l,
		fn:     fn,
		stop:   make(chan struct{}),
		fd:     fd,
		events: events,
	}
}

func (w *watcher) close() {
	close(w.stop)
}

func (w *watcher) run() {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: w.events}}
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		fds[0].Revents = 0
		n, err := unix.Poll(fds, pollIntervalMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			w.loop.log.Error("poll failed", zap.Int("fd", w.fd), zap.Error(err))
			return
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			w.loop.log.Warn("polled fd is not open", zap.Int("fd", w.fd))
			return
		}

		// Wait for the callback before polling again so a level-triggered fd
		// does not flood the loop.
		ran := make(chan struct{})
		err = w.loop.Post(func() {
			defer close(ran)
			if w.loop.isWatching(w) {
				w.fn()
			}
		})
		if err != nil {
			return
		}
		select {
		case <-ran:
		case <-w.stop:
			return
		case <-w.loop.done:
			return
		}
	}
}
