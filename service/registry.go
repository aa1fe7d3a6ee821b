package service

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// Handle tracks one running service process.
type Handle struct {
	ToolID    string
	PID       int
	Process   *os.Process
	StartTime time.Time
}

// Registry maps service tool ids to their running processes.
// It is not goroutine-safe; the Controller serializes access.
type Registry struct {
	handles map[string]*Handle
	alive   func(pid int) bool
}

func NewRegistry() *Registry {
	return &Registry{
		handles: map[string]*Handle{},
		alive:   Alive,
	}
}

func (r *Registry) Get(id string) (*Handle, bool) {
	h, ok := r.handles[id]
	return h, ok
}

func (r *Registry) Put(id string, h *Handle) {
	r.handles[id] = h
}

func (r *Registry) Remove(id string) {
	delete(r.handles, id)
}

// Reconcile evicts every handle whose process no longer exists, returning the evicted ids.
func (r *Registry) Reconcile() []string {
	var evicted []string
	for id, h := range r.handles {
		if !r.alive(h.PID) {
			delete(r.handles, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// Alive reports whether a process with the given pid exists, using the null signal.
// A permission error still means the process exists.
func Alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
