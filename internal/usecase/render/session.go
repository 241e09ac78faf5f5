package render

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"scenetuner/internal/domain"
)

// session is one renderer run. It is created by Start and replaced, never
// reused, by the next Start.
type session struct {
	id   string
	argv []string
	cmd  *exec.Cmd

	stdout *os.File
	stderr *os.File

	exited   chan struct{} // closed by wait once the process is reaped
	code     int
	exitedAt time.Time

	readersDone chan struct{} // closed once both relays return

	cancel     chan struct{}
	cancelOnce sync.Once
	closeOnce  sync.Once
}

func newSessionID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// spawnError carries the diagnostic delivered on the error queue.
type spawnError struct {
	err     error
	message string
}

// spawn starts argv with its output on two pipes. The child gets the write
// ends; the session keeps the read ends.
func spawn(id string, argv []string, dir string) (*session, *spawnError) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	setProcessGroup(cmd)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, classifySpawn(argv[0], err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, classifySpawn(argv[0], err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	startErr := cmd.Start()
	outW.Close()
	errW.Close()
	if startErr != nil {
		outR.Close()
		errR.Close()
		return nil, classifySpawn(argv[0], startErr)
	}

	s := &session{
		id:          id,
		argv:        argv,
		cmd:         cmd,
		stdout:      outR,
		stderr:      errR,
		exited:      make(chan struct{}),
		readersDone: make(chan struct{}),
		cancel:      make(chan struct{}),
	}
	go s.wait()
	return s, nil
}

func classifySpawn(exe string, err error) *spawnError {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return &spawnError{
			err: domain.NewSubSystemError("render", "Controller.Start", domain.ErrExecutableNotFound, err.Error()),
			message: fmt.Sprintf("%s command not found!\n\nInstall it with:\npip install manimgl\n\n"+
				"Or visit: https://github.com/3b1b/manim", exe),
		}
	case errors.Is(err, fs.ErrPermission):
		return &spawnError{
			err:     domain.NewSubSystemError("render", "Controller.Start", domain.ErrPermissionDenied, err.Error()),
			message: fmt.Sprintf("Permission denied: %v\nCheck file permissions", err),
		}
	default:
		return &spawnError{
			err:     domain.NewSubSystemError("render", "Controller.Start", domain.ErrResource, err.Error()),
			message: fmt.Sprintf("OS error: %v\nCheck system resources and permissions", err),
		}
	}
}

func (s *session) wait() {
	_ = s.cmd.Wait()
	s.code = -1
	if st := s.cmd.ProcessState; st != nil {
		s.code = exitCode(st)
	}
	s.exitedAt = time.Now()
	close(s.exited)
}

// exitStatus reports the exit code and time once the process has been reaped.
func (s *session) exitStatus() (code int, at time.Time, ok bool) {
	select {
	case <-s.exited:
		return s.code, s.exitedAt, true
	default:
		return 0, time.Time{}, false
	}
}

func (s *session) alive() bool {
	_, _, exited := s.exitStatus()
	return !exited
}

func (s *session) requestCancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

func (s *session) cancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

func (s *session) kill() error {
	err := s.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (s *session) closeStreams() {
	s.closeOnce.Do(func() {
		s.stdout.Close()
		s.stderr.Close()
	})
}

func (s *session) pid() int {
	return s.cmd.Process.Pid
}

// waitFor blocks until ch closes or d elapses and reports which happened.
func waitFor(ch <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
