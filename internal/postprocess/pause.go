package postprocess

import "sync"

// pauseGate is the post-processor's pause state, grounded on
// PrePostProcessor::UpdatePauseState/PauseDownload/UnpauseDownload. Each
// ParPauseQueue/UnpackPauseQueue/ScriptPauseQueue stage that runs raises
// a pause under its reason, and nested pauses compose as one reference
// count: every Pause adds one to its reason's count, every Unpause takes
// one away, and the gate reads paused while any count is above zero.
type pauseGate struct {
	mu      sync.Mutex
	reasons map[string]int
	onEmpty func()
}

func newPauseGate(onEmpty func()) *pauseGate {
	return &pauseGate{reasons: make(map[string]int), onEmpty: onEmpty}
}

// Pause adds one pause under reason (e.g. "par", "unpack", "script").
func (g *pauseGate) Pause(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reasons[reason]++
}

// Unpause releases one pause under reason; once every reason's count is
// back to zero the queue may resume downloading.
func (g *pauseGate) Unpause(reason string) {
	g.mu.Lock()
	if g.reasons[reason] > 1 {
		g.reasons[reason]--
	} else {
		delete(g.reasons, reason)
	}
	empty := len(g.reasons) == 0
	g.mu.Unlock()
	if empty && g.onEmpty != nil {
		g.onEmpty()
	}
}

// IsPaused reports whether any reason is currently active.
func (g *pauseGate) IsPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reasons) > 0
}
