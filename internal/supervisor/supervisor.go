// Package supervisor spawns and supervises the worker OS process fleet,
// generalizing the teacher's single-process signal handling in
// cmd/outbox/main.go into true multi-process supervision: each worker is
// a real, independently SIGKILL-able child process, not a goroutine.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultJoinTimeout is how long the supervisor waits for children to
// exit cooperatively before force-killing them.
const DefaultJoinTimeout = 5 * time.Second

// ExitHook is invoked once per child exit, giving the caller (the
// heartbeat registry, in cmd/dispatcher) something to key a restart
// policy on — restart-on-crash itself is out of core scope.
type ExitHook func(workerName string, pid int, exitCode int, exitedAt time.Time)

// Config bundles the Supervisor's tunables.
type Config struct {
	NumProcesses int
	// BinPath is the executable to re-exec; normally os.Executable().
	BinPath string
	// BaseArgs is prefixed to each child's argv, e.g. []string{"worker"}.
	BaseArgs []string
	// Env is passed to each child verbatim (secrets travel through env,
	// not flags).
	Env         []string
	JoinTimeout time.Duration
	OnExit      ExitHook
}

type child struct {
	name string
	cmd  *exec.Cmd
}

// Supervisor owns the worker process fleet for one supervise invocation.
type Supervisor struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Supervisor. NumProcesses < 1 and an empty BinPath are
// programming errors; cfg values below this line are otherwise trusted.
func New(cfg Config, logger *zap.Logger) (*Supervisor, error) {
	if cfg.NumProcesses < 1 {
		return nil, fmt.Errorf("supervisor: num_processes must be at least 1")
	}
	if cfg.BinPath == "" {
		return nil, fmt.Errorf("supervisor: bin_path must not be empty")
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	return &Supervisor{cfg: cfg, logger: logger}, nil
}

// Run spawns NumProcesses worker child processes, installs SIGINT/SIGTERM
// handlers, and blocks until either ctx is cancelled, a signal arrives, or
// every child has exited on its own. On shutdown it forwards SIGTERM to
// every surviving child, waits up to JoinTimeout, then force-kills any
// stragglers.
func (s *Supervisor) Run(ctx context.Context) error {
	children := make([]*child, 0, s.cfg.NumProcesses)
	exited := make(chan struct{})
	var wg sync.WaitGroup

	for i := 1; i <= s.cfg.NumProcesses; i++ {
		c, err := s.spawn(i)
		if err != nil {
			s.terminateAll(children)
			return fmt.Errorf("spawn worker-%02d: %w", i, err)
		}
		children = append(children, c)

		wg.Add(1)
		go func(c *child) {
			defer wg.Done()
			s.awaitExit(c)
		}(c)
	}

	go func() {
		wg.Wait()
		close(exited)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.logger.Info("supervisor stopping due to context cancellation")
	case sig := <-sigCh:
		s.logger.Info("supervisor received shutdown signal", zap.String("signal", sig.String()))
	case <-exited:
		s.logger.Info("all workers exited on their own")
		return nil
	}

	s.shutdown(children, exited)
	return nil
}

func (s *Supervisor) spawn(workerID int) (*child, error) {
	name := fmt.Sprintf("worker-%02d", workerID)
	args := append(append([]string{}, s.cfg.BaseArgs...), fmt.Sprintf("--worker-id=%d", workerID))

	cmd := exec.Command(s.cfg.BinPath, args...)
	cmd.Env = s.cfg.Env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = newSysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	s.logger.Info("spawned worker process", zap.String("worker", name), zap.Int("pid", cmd.Process.Pid))
	return &child{name: name, cmd: cmd}, nil
}

func (s *Supervisor) awaitExit(c *child) {
	err := c.cmd.Wait()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	s.logger.Warn("worker process exited",
		zap.String("worker", c.name), zap.Int("pid", c.cmd.Process.Pid), zap.Int("exit_code", exitCode))

	if s.cfg.OnExit != nil {
		s.cfg.OnExit(c.name, c.cmd.Process.Pid, exitCode, time.Now().UTC())
	}
}

// shutdown forwards SIGTERM to every child's process group, waits up to
// JoinTimeout for cooperative exit, then force-kills stragglers.
func (s *Supervisor) shutdown(children []*child, exited <-chan struct{}) {
	s.logger.Info("forwarding shutdown signal to workers", zap.Int("count", len(children)))
	for _, c := range children {
		if err := signalGroup(c.cmd.Process.Pid, syscall.SIGTERM); err != nil {
			s.logger.Warn("failed to signal worker", zap.String("worker", c.name), zap.Error(err))
		}
	}

	select {
	case <-exited:
		s.logger.Info("all workers exited cleanly")
		return
	case <-time.After(s.cfg.JoinTimeout):
		s.logger.Warn("workers did not exit within join timeout, force-killing stragglers",
			zap.Duration("timeout", s.cfg.JoinTimeout))
	}

	s.terminateAll(children)
}

func (s *Supervisor) terminateAll(children []*child) {
	for _, c := range children {
		if c.cmd.Process == nil {
			continue
		}
		if err := signalGroup(c.cmd.Process.Pid, syscall.SIGKILL); err != nil {
			s.logger.Debug("kill failed, process likely already exited", zap.String("worker", c.name), zap.Error(err))
		}
	}
}

// signalGroup signals the process group led by pid (negative pid), falling
// back to signaling the single process if group signaling is unsupported.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		return syscall.Kill(pid, sig)
	}
	return nil
}
