// Package transfer tracks the progress of one file transfer.
//
// Both endpoints create a Transfer per connection to record state
// transitions, the running byte count, and an estimated speed. Tracking is
// observational: no protocol behavior depends on it, it feeds logging and
// the client's progress callback.
package transfer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Direction indicates whether bytes flow into or out of this process.
type Direction uint8

const (
	// DirectionInbound represents a file being received.
	DirectionInbound Direction = iota
	// DirectionOutbound represents a file being sent.
	DirectionOutbound
)

// String returns the human-readable direction name.
func (d Direction) String() string {
	if d == DirectionOutbound {
		return "outbound"
	}
	return "inbound"
}

// State represents the current state of a transfer.
type State uint8

const (
	// StatePending indicates the transfer is waiting to start.
	StatePending State = iota
	// StateRunning indicates the transfer is in progress.
	StateRunning
	// StateCompleted indicates the transfer finished successfully.
	StateCompleted
	// StateError indicates the transfer failed or ended incomplete.
	StateError
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "pending"
	}
}

// TimeProvider abstracts time observation for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// Transfer records the progress of one transfer. Methods are safe for
// concurrent use; callbacks run synchronously on the calling goroutine.
type Transfer struct {
	Path      string
	Total     uint64
	Direction Direction

	mu          sync.Mutex
	state       State
	transferred uint64
	startTime   time.Time
	timeSource  TimeProvider

	progressCallback func(transferred, total uint64)
	completeCallback func(err error)
	err              error
}

// New creates a transfer for path expecting total bytes to move. For a
// resumed transfer, total is the remaining byte count of this attempt.
func New(path string, total uint64, direction Direction) *Transfer {
	return &Transfer{
		Path:       path,
		Total:      total,
		Direction:  direction,
		state:      StatePending,
		timeSource: DefaultTimeProvider{},
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (t *Transfer) SetTimeProvider(tp TimeProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	t.timeSource = tp
}

// OnProgress registers a callback invoked after every recorded chunk.
func (t *Transfer) OnProgress(fn func(transferred, total uint64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progressCallback = fn
}

// OnComplete registers a callback invoked once the transfer ends, with a
// nil error on success.
func (t *Transfer) OnComplete(fn func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completeCallback = fn
}

// Start marks the transfer running and stamps its start time.
func (t *Transfer) Start() {
	t.mu.Lock()
	t.state = StateRunning
	t.startTime = t.timeSource.Now()
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Start",
		"path":      t.Path,
		"total":     t.Total,
		"direction": t.Direction.String(),
	}).Debug("Transfer started")
}

// Record adds n transferred bytes and fires the progress callback.
func (t *Transfer) Record(n uint64) {
	t.mu.Lock()
	t.transferred += n
	transferred := t.transferred
	total := t.Total
	fn := t.progressCallback
	t.mu.Unlock()

	if fn != nil {
		fn(transferred, total)
	}
}

// Transferred returns the bytes moved so far.
func (t *Transfer) Transferred() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferred
}

// GetState returns the current state.
func (t *Transfer) GetState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the terminal error, nil until Fail is called.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Speed returns the observed transfer rate in bytes per second, zero
// before any measurable time has elapsed.
func (t *Transfer) Speed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startTime.IsZero() {
		return 0
	}
	elapsed := t.timeSource.Since(t.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.transferred) / elapsed
}

// Complete marks the transfer finished and fires the completion callback.
func (t *Transfer) Complete() {
	t.finish(StateCompleted, nil)

	logrus.WithFields(logrus.Fields{
		"function":    "Complete",
		"path":        t.Path,
		"transferred": t.Transferred(),
		"direction":   t.Direction.String(),
	}).Info("Transfer completed")
}

// Fail marks the transfer failed with err and fires the completion
// callback.
func (t *Transfer) Fail(err error) {
	t.finish(StateError, err)

	logrus.WithFields(logrus.Fields{
		"function":    "Fail",
		"path":        t.Path,
		"transferred": t.Transferred(),
		"total":       t.Total,
		"error":       err,
	}).Warn("Transfer failed")
}

func (t *Transfer) finish(state State, err error) {
	t.mu.Lock()
	t.state = state
	t.err = err
	fn := t.completeCallback
	t.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
