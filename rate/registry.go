package rate

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Registry counts the clients currently connected to the server. It is
// created once at server start and shared by the accept loop, which
// mutates it, and the rate controller, which only reads it. All access is
// atomic; no lock is ever held across I/O.
type Registry struct {
	active atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add records a newly admitted client and returns the updated count.
func (r *Registry) Add() int64 {
	n := r.active.Add(1)
	logrus.WithFields(logrus.Fields{
		"function":       "Add",
		"active_clients": n,
	}).Debug("Client connected")
	return n
}

// Done records a departed client and returns the updated count. The count
// never goes negative: an unmatched Done is logged and undone.
func (r *Registry) Done() int64 {
	n := r.active.Add(-1)
	if n < 0 {
		r.active.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Done",
		}).Warn("Registry Done without matching Add")
		return 0
	}
	logrus.WithFields(logrus.Fields{
		"function":       "Done",
		"active_clients": n,
	}).Debug("Client disconnected")
	return n
}

// Count returns the number of currently connected clients.
func (r *Registry) Count() int64 {
	return r.active.Load()
}
