package rotation

import (
	"sync"
	"sync/atomic"
)

// Sample is one consistent reading of the signal.
type Sample struct {
	Delta int8
	State ConnectionState
	// Seq counts writes; a reader can tell a repeated sample from a new one.
	Seq uint64
}

// Signal is the last known crank delta plus the link state. Both live in one
// atomic word so readers never see a delta from one write next to the state
// of another, and never block.
//
// Word layout: bits 0-7 delta, 8-15 state, 16-63 sequence.
type Signal struct {
	word atomic.Uint64

	mu   sync.Mutex
	subs []chan ConnectionState
}

// Writer is the only way to change a Signal. NewSignal hands out exactly one.
type Writer struct {
	s *Signal
}

// NewSignal returns a signal at delta 0, Disconnected, and its writer.
func NewSignal() (*Signal, *Writer) {
	s := &Signal{}
	return s, &Writer{s: s}
}

func pack(delta int8, state ConnectionState, seq uint64) uint64 {
	return uint64(uint8(delta)) | uint64(state)<<8 | seq<<16
}

func unpack(w uint64) Sample {
	return Sample{
		Delta: int8(uint8(w)),
		State: ConnectionState(uint8(w >> 8)),
		Seq:   w >> 16,
	}
}

// Load returns the current sample without blocking.
func (s *Signal) Load() Sample {
	return unpack(s.word.Load())
}

// Delta is shorthand for Load().Delta.
func (s *Signal) Delta() int8 { return s.Load().Delta }

// State is shorthand for Load().State.
func (s *Signal) State() ConnectionState { return s.Load().State }

// Changes returns a channel that receives the newest state after each state
// change. The channel holds one value; a reader that falls behind only sees
// the latest state.
func (s *Signal) Changes() <-chan ConnectionState {
	ch := make(chan ConnectionState, 1)
	ch <- s.State()
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Signal) notify(state ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

// Publish stores a new delta, keeping the current state.
// It may run concurrently with SetState.
func (w *Writer) Publish(delta int8) {
	for {
		old := w.s.word.Load()
		cur := unpack(old)
		if w.s.word.CompareAndSwap(old, pack(delta, cur.State, cur.Seq+1)) {
			return
		}
	}
}

// SetState stores a new link state, keeping the last delta. It reports
// whether the state actually changed.
func (w *Writer) SetState(state ConnectionState) bool {
	for {
		old := w.s.word.Load()
		cur := unpack(old)
		if cur.State == state {
			return false
		}
		if w.s.word.CompareAndSwap(old, pack(cur.Delta, state, cur.Seq+1)) {
			w.s.notify(state)
			return true
		}
	}
}

// Signal returns the signal this writer updates.
func (w *Writer) Signal() *Signal { return w.s }
