// Package service starts, stops and reports on long-running service tools.
package service

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/guseggert/osinthub/launch"
	"github.com/guseggert/osinthub/tool"
	"go.uber.org/zap"
)

type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Status is the reported state of one service tool.
type Status struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status State  `json:"status"`
	URL    string `json:"url"`
}

// Controller owns the registry of running services.
// Every registry read-then-write sequence is done under one lock,
// so concurrent starts of the same service spawn it once.
type Controller struct {
	log      *zap.SugaredLogger
	tools    *tool.Table
	launcher *launch.Launcher

	mut      sync.Mutex
	registry *Registry

	signal func(pid int, sig syscall.Signal) error
}

func NewController(log *zap.SugaredLogger, tools *tool.Table) *Controller {
	return &Controller{
		log:      log.Named("service_controller"),
		tools:    tools,
		launcher: &launch.Launcher{Tools: tools},
		registry: NewRegistry(),
		signal:   syscall.Kill,
	}
}

// reconcile must be called with mut held.
func (c *Controller) reconcile() {
	for _, id := range c.registry.Reconcile() {
		c.log.Infow("service no longer running, evicted", "Tool", id)
	}
}

// Start starts the service if it is not already running.
func (c *Controller) Start(id string) (State, error) {
	cmd, err := c.launcher.Service(id)
	if err != nil {
		return "", err
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	c.reconcile()
	if h, ok := c.registry.Get(id); ok {
		c.log.Debugw("service already running", "Tool", id, "PID", h.PID)
		return StateRunning, nil
	}

	err = launch.Start(id, cmd)
	if err != nil {
		c.log.Warnw("service failed to start", "Tool", id, "Error", err)
		return "", err
	}
	h := &Handle{
		ToolID:    id,
		PID:       cmd.Process.Pid,
		Process:   cmd.Process,
		StartTime: time.Now(),
	}
	c.registry.Put(id, h)
	c.log.Infow("started service", "Tool", id, "PID", h.PID, "Command", cmd.Args)

	go c.reap(id, cmd)

	return StateRunning, nil
}

// reap waits on the service so an exited service does not linger as a zombie
// that still answers the liveness probe. Once reaped its pid may be reused,
// so the entry is evicted here rather than left for the next reconcile.
func (c *Controller) reap(id string, cmd *exec.Cmd) {
	err := cmd.Wait()
	c.log.Debugw("service exited", "Tool", id, "PID", cmd.Process.Pid, "ExitCode", cmd.ProcessState.ExitCode(), "Error", err)

	c.mut.Lock()
	defer c.mut.Unlock()
	if h, ok := c.registry.Get(id); ok && h.Process == cmd.Process {
		c.registry.Remove(id)
		c.log.Infow("service exited, evicted", "Tool", id, "PID", h.PID)
	}
}

// Stop signals the service to terminate.
// The registry entry is removed even if the signal could not be delivered.
func (c *Controller) Stop(id string) (State, error) {
	_, err := c.tools.Service(id)
	if err != nil {
		return "", err
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	c.reconcile()
	h, ok := c.registry.Get(id)
	if !ok {
		return StateStopped, nil
	}

	err = c.signal(h.PID, syscall.SIGTERM)
	if err != nil {
		c.log.Warnw("unable to signal service, evicting anyway", "Tool", id, "PID", h.PID, "Error", err)
	} else {
		c.log.Infow("stopped service", "Tool", id, "PID", h.PID)
	}
	c.registry.Remove(id)
	return StateStopped, nil
}

// Status reports every service tool in configuration order.
func (c *Controller) Status() []Status {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.reconcile()
	statuses := []Status{}
	for _, d := range c.tools.Services() {
		state := StateStopped
		if _, ok := c.registry.Get(d.ID); ok {
			state = StateRunning
		}
		statuses = append(statuses, Status{
			ID:     d.ID,
			Name:   d.Name,
			Status: state,
			URL:    d.URL,
		})
	}
	return statuses
}

// StopAll stops every running service.
func (c *Controller) StopAll() {
	for _, d := range c.tools.Services() {
		_, err := c.Stop(d.ID)
		if err != nil {
			c.log.Debugw("error stopping service", "Tool", d.ID, "Error", err)
		}
	}
}
