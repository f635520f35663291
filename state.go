package reactor

import "sync/atomic"

// WorkerState is the lifecycle state of one worker reactor.
//
//	StateAwake (0) → StateRunning (3)        [Worker.Run starts]
//	StateRunning (3) → StateSleeping (2)     [poller.wait blocks]
//	StateSleeping (2) → StateRunning (3)     [poller.wait returns]
//	StateRunning/Sleeping (3/2) → StateTerminating (4)  [Worker.Run returns on quit or poller close]
//	StateTerminating (4) → StateTerminated (1)
//	StateTerminated (1) → (terminal)
type WorkerState uint64

const (
	StateAwake       WorkerState = 0
	StateTerminated  WorkerState = 1
	StateSleeping    WorkerState = 2
	StateRunning     WorkerState = 3
	StateTerminating WorkerState = 4
)

func (s WorkerState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine, cache-line padded to avoid false
// sharing between a worker's own goroutine and controllers (reload,
// shutdown) observing it from another thread.
type FastState struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *FastState) Load() WorkerState {
	return WorkerState(s.v.Load())
}

func (s *FastState) Store(state WorkerState) {
	s.v.Store(uint64(state))
}

func (s *FastState) TryTransition(from, to WorkerState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *FastState) TransitionAny(validFrom []WorkerState, to WorkerState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}

func (s *FastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

func (s *FastState) IsRunning() bool {
	state := s.Load()
	return state == StateRunning || state == StateSleeping
}

func (s *FastState) CanAcceptWork() bool {
	state := s.Load()
	return state == StateAwake || state == StateRunning || state == StateSleeping
}
