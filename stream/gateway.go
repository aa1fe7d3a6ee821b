package stream

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/guseggert/osinthub/launch"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type State int

const (
	StateInitializing State = iota
	StateRunning
	StateDraining
	StateClosed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// DefaultKillGrace is how long a cancelled process group has between SIGTERM and SIGKILL.
const DefaultKillGrace = 5 * time.Second

// Gateway runs streaming sessions. It holds no per-session state, so one Gateway serves every connection.
type Gateway struct {
	Log       *zap.SugaredLogger
	Launcher  *launch.Launcher
	KillGrace time.Duration
}

// Run validates the request, runs the tool and streams its output to em until the process exits or ctx is done.
// It returns the state the session ended in, which is always StateClosed or StateCancelled.
func (g *Gateway) Run(ctx context.Context, em Emitter, toolID, target string) State {
	killGrace := g.KillGrace
	if killGrace == 0 {
		killGrace = DefaultKillGrace
	}
	id := uuid.NewString()
	s := &session{
		log:       g.Log.Named("stream_session").With("Session", id, "Tool", toolID),
		launcher:  g.Launcher,
		em:        em,
		killGrace: killGrace,
		state:     StateInitializing,
	}
	return s.run(ctx, toolID, target)
}

type session struct {
	log       *zap.SugaredLogger
	launcher  *launch.Launcher
	em        Emitter
	killGrace time.Duration

	state State
	cmd   *exec.Cmd
	pipes []io.Closer

	// waitCh receives the result of reaping the process. exited is set once it has been received.
	waitCh chan waitResult
	exited bool

	closeOnce sync.Once
}

type waitResult struct {
	state *os.ProcessState
	err   error
}

func (s *session) transition(to State) {
	s.log.Debugw("session transition", "From", s.state, "To", to)
	s.state = to
}

// release closes the output exactly once.
func (s *session) release() {
	s.closeOnce.Do(func() {
		err := s.em.Close()
		if err != nil {
			s.log.Debugf("error closing output: %s", err)
		}
	})
}

func (s *session) emit(ctx context.Context, ev Event) error {
	return s.em.Emit(ctx, ev)
}

func (s *session) closePipes() {
	for _, p := range s.pipes {
		p.Close()
	}
}

func (s *session) run(ctx context.Context, toolID, target string) State {
	defer s.release()

	cmd, err := s.launcher.CLI(toolID, target)
	if err != nil {
		s.log.Debugf("rejecting request: %s", err)
		s.reject(ctx, rejectEvent(err))
		s.transition(StateClosed)
		return s.state
	}
	s.cmd = cmd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.failSpawn(ctx, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return s.failSpawn(ctx, err)
	}
	s.pipes = []io.Closer{stdout, stderr}

	err = launch.Start(toolID, cmd)
	if err != nil {
		return s.failSpawn(ctx, err)
	}
	s.log.Infow("started process", "PID", cmd.Process.Pid, "Command", cmd.Args)
	s.transition(StateRunning)

	// The process is reaped with Process.Wait rather than cmd.Wait, because cmd.Wait closes
	// the pipes and would drop output still buffered in them. The pipes are closed here instead.
	s.waitCh = make(chan waitResult, 1)
	go func() {
		state, err := cmd.Process.Wait()
		s.waitCh <- waitResult{state: state, err: err}
	}()

	readCtx, cancelReads := context.WithCancel(ctx)
	defer cancelReads()

	stdoutCh := make(chan []byte)
	stderrCh := make(chan []byte)
	group, groupCtx := errgroup.WithContext(readCtx)
	group.Go(func() error { return pump(groupCtx, stdout, stdoutCh) })
	group.Go(func() error { return pump(groupCtx, stderr, stderrCh) })

	// Output and exit are independent: a process may close its output and keep running,
	// or exit while a child it left behind still holds the pipes.
	var result waitResult
	waitCh := s.waitCh
	for stdoutCh != nil || stderrCh != nil || waitCh != nil {
		var (
			b  []byte
			ok bool
		)
		select {
		case <-ctx.Done():
			s.log.Debugf("client went away: %s", ctx.Err())
			s.cancel(cancelReads, group)
			return s.state
		case result = <-waitCh:
			waitCh = nil
			s.exited = true
			continue
		case b, ok = <-stdoutCh:
			if !ok {
				stdoutCh = nil
				continue
			}
		case b, ok = <-stderrCh:
			if !ok {
				stderrCh = nil
				continue
			}
		}
		err := s.emit(ctx, Event{Text: string(b)})
		if err != nil {
			s.log.Debugf("error writing output, cancelling: %s", err)
			s.cancel(cancelReads, group)
			return s.state
		}
	}

	err = group.Wait()
	if err != nil {
		s.log.Debugf("output reader error: %s", err)
	}
	s.closePipes()
	if result.err != nil {
		s.log.Debugf("unexpected wait error: %s", result.err)
	}
	exitCode := -1
	if result.state != nil {
		exitCode = result.state.ExitCode()
	}
	s.log.Infow("process exited", "PID", cmd.Process.Pid, "ExitCode", exitCode)

	err = s.emit(ctx, exitEvent(exitCode))
	if err != nil {
		s.log.Debugf("error sending exit code: %s", err)
	}
	s.transition(StateDraining)
	s.release()
	s.transition(StateClosed)
	return s.state
}

func (s *session) reject(ctx context.Context, ev Event) {
	var err error
	if r, ok := s.em.(rejecter); ok {
		err = r.Reject(ctx, ev)
	} else {
		err = s.emit(ctx, ev)
	}
	if err != nil {
		s.log.Debugf("error sending rejection: %s", err)
	}
}

func (s *session) failSpawn(ctx context.Context, err error) State {
	s.log.Infow("process failed to start", "Error", err)
	var spawnErr *launch.SpawnError
	if errors.As(err, &spawnErr) {
		err = spawnErr.Err
	}
	err = s.emit(ctx, spawnErrorEvent(err))
	if err != nil {
		s.log.Debugf("error sending spawn failure: %s", err)
	}
	s.transition(StateClosed)
	return s.state
}

func (s *session) killGroup(pid int, sig syscall.Signal) {
	err := syscall.Kill(-pid, sig)
	if err != nil {
		s.log.Debugf("error sending %s to process group %d: %s", sig, pid, err)
	}
}

// cancel terminates the process group, reaps the process and waits for the readers to stop.
func (s *session) cancel(cancelReads func(), group *errgroup.Group) {
	pid := s.cmd.Process.Pid

	if s.exited {
		// Only processes left behind in the group remain, and there is nothing to wait on for them.
		s.killGroup(pid, syscall.SIGKILL)
	} else {
		s.killGroup(pid, syscall.SIGTERM)
		timer := time.NewTimer(s.killGrace)
		defer timer.Stop()
		select {
		case <-s.waitCh:
		case <-timer.C:
			s.log.Debugf("process group %d still running after %s, sending SIGKILL", pid, s.killGrace)
			s.killGroup(pid, syscall.SIGKILL)
			<-s.waitCh
		}
		s.exited = true
	}

	// Closing the pipes unblocks pending reads; cancelling unblocks pending sends.
	s.closePipes()
	cancelReads()
	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debugf("output reader error: %s", err)
	}
	s.log.Infow("cancelled process", "PID", pid)
	s.transition(StateCancelled)
}

// pump reads r in chunks and sends each chunk on out, closing out when r is exhausted.
func pump(ctx context.Context, r io.Reader, out chan<- []byte) error {
	defer close(out)
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			select {
			case out <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
