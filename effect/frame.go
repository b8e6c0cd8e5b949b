package effect

import (
	"github.com/loomkit/compose/compose"
	"github.com/loomkit/compose/scheduler"
)

// WithFrameNanos registers cb to run once, at the next drained frame.
// Composable bodies that already import package effect for Launched or
// Disposable can reach frame callbacks here without a second import of
// package scheduler.
func WithFrameNanos(handle compose.RuntimeHandle, cb func(timeNanos int64)) scheduler.CancelFunc {
	return handle.Scheduler().RegisterFrameCallback(cb)
}
