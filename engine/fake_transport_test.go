package engine

import "sync"

// fakeTransport is a Transport test double built on the real baseTransport
// (so it gets a real EventEmitter and atomic ready-state/writable tracking
// for free) with network I/O replaced by recorded calls.
type fakeTransport struct {
	baseTransport

	mu         sync.Mutex
	sendCalls  [][]Frame
	closed     bool
	pauseCalls int
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{baseTransport: newBaseTransport(name, DefaultOptions(), nopLogger{})}
}

func (f *fakeTransport) Open() {
	f.setReadyState(TransportStateOpen)
	f.emitOpen()
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.emitClose(nil)
}

func (f *fakeTransport) Send(frames []Frame) {
	f.mu.Lock()
	f.sendCalls = append(f.sendCalls, frames)
	f.mu.Unlock()
}

func (f *fakeTransport) Pause(onPause func()) {
	f.mu.Lock()
	f.pauseCalls++
	f.mu.Unlock()
	onPause()
}

func (f *fakeTransport) sentFrames() [][]Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]Frame, len(f.sendCalls))
	copy(out, f.sendCalls)
	return out
}

func (f *fakeTransport) pausedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauseCalls
}

var _ Transport = (*fakeTransport)(nil)
