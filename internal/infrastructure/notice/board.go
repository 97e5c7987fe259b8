// Package notice holds the transient banner shown after a successful checkout.
package notice

import (
	"context"
	"sync"
	"time"

	"github.com/Zhima-Mochi/snackshop/internal/observability"
	"github.com/Zhima-Mochi/snackshop/internal/observability/logctx"
)

type Notice struct {
	Message   string
	ShownAt   time.Time
	ExpiresAt time.Time
}

// Board shows one notice at a time. A newer notice replaces the older one and restarts the window.
type Board struct {
	mu      sync.Mutex
	current *Notice
	timer   *time.Timer
	gen     uint64
	log     observability.Logger
	onShow  func(Notice)
}

func NewBoard(logger observability.Logger) *Board {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Board{log: logger.With(observability.F("component", "notice_board"))}
}

// OnShow registers fn to run, outside the board lock, whenever a notice is shown.
func (b *Board) OnShow(fn func(Notice)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onShow = fn
}

func (b *Board) Show(ctx context.Context, message string, window time.Duration) {
	now := time.Now()
	n := Notice{Message: message, ShownAt: now, ExpiresAt: now.Add(window)}

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.current = &n
	b.timer = time.AfterFunc(window, func() { b.expire(gen) })
	hook := b.onShow
	b.mu.Unlock()

	logctx.FromOr(ctx, b.log).Info("notice_shown",
		observability.F("message", message),
		observability.F("window_seconds", window.Seconds()),
	)
	if hook != nil {
		hook(n)
	}
}

// Current returns the visible notice, if any.
func (b *Board) Current() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Notice{}, false
	}
	return *b.current, true
}

// Dismiss hides the visible notice before its window ends.
func (b *Board) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	b.current = nil
}

func (b *Board) expire(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}
	b.current = nil
	b.timer = nil
}
