package service

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/guseggert/osinthub/launch"
	"github.com/guseggert/osinthub/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var log *zap.SugaredLogger

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	log = l.Sugar()
}

// newController builds a controller with a single "sleeper" service that records its pid in dir/pids.
func newController(t *testing.T) (*Controller, string) {
	t.Helper()
	dir := t.TempDir()
	table, err := tool.NewTable([]tool.Descriptor{
		{
			ID:      "sleeper",
			Name:    "Sleeper",
			Kind:    tool.KindService,
			Dir:     dir,
			Command: "sh",
			Args:    []string{"-c", "echo $$ >> pids; exec sleep 30"},
			URL:     "http://127.0.0.1:5999",
		},
		{
			ID:      "broken",
			Kind:    tool.KindService,
			Dir:     dir,
			Command: "/nonexistent/broken",
		},
		{
			ID:      "holehe",
			Kind:    tool.KindCLI,
			Dir:     dir,
			Command: "holehe",
		},
	})
	require.NoError(t, err)
	c := NewController(log, table)
	t.Cleanup(c.StopAll)
	return c, dir
}

func readPIDs(dir string) []string {
	b, err := os.ReadFile(filepath.Join(dir, "pids"))
	if err != nil {
		return nil
	}
	return strings.Fields(string(b))
}

// handle looks up a registry entry under the controller's lock, since reapers update it concurrently.
func handle(c *Controller, id string) (*Handle, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	return c.registry.Get(id)
}

func TestUnknownTool(t *testing.T) {
	c, dir := newController(t)

	for _, id := range []string{"missing", "holehe"} {
		_, err := c.Start(id)
		assert.ErrorIs(t, err, tool.ErrUnknownTool)

		_, err = c.Stop(id)
		assert.ErrorIs(t, err, tool.ErrUnknownTool)
	}
	assert.Empty(t, c.registry.handles)
	assert.Empty(t, readPIDs(dir))
}

func TestStartIsIdempotent(t *testing.T) {
	c, dir := newController(t)

	var group errgroup.Group
	states := make([]State, 4)
	for i := range states {
		i := i
		group.Go(func() error {
			state, err := c.Start("sleeper")
			states[i] = state
			return err
		})
	}
	require.NoError(t, group.Wait())

	for _, s := range states {
		assert.Equal(t, StateRunning, s)
	}

	require.Eventually(t, func() bool { return len(readPIDs(dir)) > 0 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, readPIDs(dir), 1)

	h, ok := handle(c, "sleeper")
	require.True(t, ok)
	assert.True(t, Alive(h.PID))
}

func TestStopWhenStoppedDoesNotSignal(t *testing.T) {
	c, _ := newController(t)
	signals := 0
	c.signal = func(pid int, sig syscall.Signal) error {
		signals++
		return nil
	}

	state, err := c.Stop("sleeper")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, state)
	assert.Equal(t, 0, signals)
}

func TestStop(t *testing.T) {
	c, _ := newController(t)

	_, err := c.Start("sleeper")
	require.NoError(t, err)
	h, ok := handle(c, "sleeper")
	require.True(t, ok)

	state, err := c.Stop("sleeper")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, state)

	_, ok = handle(c, "sleeper")
	assert.False(t, ok)
	require.Eventually(t, func() bool { return !Alive(h.PID) }, 5*time.Second, 10*time.Millisecond)
}

func TestStopSignalFailureStillEvicts(t *testing.T) {
	c, _ := newController(t)

	_, err := c.Start("sleeper")
	require.NoError(t, err)
	h, ok := handle(c, "sleeper")
	require.True(t, ok)
	t.Cleanup(func() { h.Process.Kill() })

	c.signal = func(pid int, sig syscall.Signal) error { return syscall.EPERM }

	state, err := c.Stop("sleeper")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, state)
	_, ok = handle(c, "sleeper")
	assert.False(t, ok)
}

func TestStatusReconcilesExternalKill(t *testing.T) {
	c, _ := newController(t)

	statuses := c.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, Status{ID: "sleeper", Name: "Sleeper", Status: StateStopped, URL: "http://127.0.0.1:5999"}, statuses[0])

	_, err := c.Start("sleeper")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, c.Status()[0].Status)

	h, ok := handle(c, "sleeper")
	require.True(t, ok)
	require.NoError(t, h.Process.Kill())

	require.Eventually(t, func() bool {
		return c.Status()[0].Status == StateStopped
	}, 5*time.Second, 10*time.Millisecond)
	_, ok = handle(c, "sleeper")
	assert.False(t, ok)
}

func TestExitedServiceIsEvictedWithoutStatus(t *testing.T) {
	c, _ := newController(t)

	_, err := c.Start("sleeper")
	require.NoError(t, err)
	h, ok := handle(c, "sleeper")
	require.True(t, ok)
	require.NoError(t, h.Process.Kill())

	require.Eventually(t, func() bool {
		_, ok := handle(c, "sleeper")
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReapKeepsRestartedService(t *testing.T) {
	c, _ := newController(t)

	_, err := c.Start("sleeper")
	require.NoError(t, err)
	first, ok := handle(c, "sleeper")
	require.True(t, ok)

	_, err = c.Stop("sleeper")
	require.NoError(t, err)
	_, err = c.Start("sleeper")
	require.NoError(t, err)
	second, ok := handle(c, "sleeper")
	require.True(t, ok)
	require.NotEqual(t, first.PID, second.PID)

	require.Eventually(t, func() bool { return !Alive(first.PID) }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	h, ok := handle(c, "sleeper")
	require.True(t, ok)
	assert.Equal(t, second.PID, h.PID)
}

func TestStartSpawnFailure(t *testing.T) {
	c, _ := newController(t)

	_, err := c.Start("broken")
	var spawnErr *launch.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	_, ok := handle(c, "broken")
	assert.False(t, ok)
}

func TestRegistryReconcile(t *testing.T) {
	r := NewRegistry()
	dead := map[int]bool{2: true}
	r.alive = func(pid int) bool { return !dead[pid] }

	r.Put("a", &Handle{ToolID: "a", PID: 1})
	r.Put("b", &Handle{ToolID: "b", PID: 2})

	assert.Equal(t, []string{"b"}, r.Reconcile())
	_, ok := r.Get("a")
	assert.True(t, ok)
	_, ok = r.Get("b")
	assert.False(t, ok)

	r.Remove("a")
	assert.Empty(t, r.Reconcile())
	_, ok = r.Get("a")
	assert.False(t, ok)
}

func TestAlive(t *testing.T) {
	assert.True(t, Alive(os.Getpid()))
}
