// Package supervisor spawns and manages the external inference process.
//
// One supervisor tracks at most one active process per session: a spawn
// request while a process is alive is rejected rather than silently
// starting a second producer against the same transport files. Stdout
// and stderr are captured into bounded ring buffers and forwarded line
// by line. Termination is graceful-then-forceful: SIGTERM, a bounded
// wait, then SIGKILL to the process group.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Status is the lifecycle state of a supervised process.
type Status string

const (
	StatusSpawned    Status = "spawned"
	StatusRunning    Status = "running"
	StatusExited     Status = "exited"
	StatusTerminated Status = "terminated"
	StatusKilled     Status = "killed"
	StatusNotFound   Status = "not_found"
)

// ErrAlreadyRunning is returned by Spawn while a process is still tracked
// as active.
var ErrAlreadyRunning = errors.New("an inference process is already running for this session")

// Capabilities are the per-detector enable flags passed to the
// inference process.
type Capabilities struct {
	PhoneDetection bool
	FaceDetection  bool
	FaceMatching   bool
	EyeTracking    bool
}

// Intersect applies the system enable policy to a session's requested
// capabilities. Policy may only disable a requested capability, never
// enable one the session did not ask for.
func (c Capabilities) Intersect(policy Capabilities) Capabilities {
	return Capabilities{
		PhoneDetection: c.PhoneDetection && policy.PhoneDetection,
		FaceDetection:  c.FaceDetection && policy.FaceDetection,
		FaceMatching:   c.FaceMatching && policy.FaceMatching,
		EyeTracking:    c.EyeTracking && policy.EyeTracking,
	}
}

// Args renders the capabilities as child process flags.
func (c Capabilities) Args() []string {
	flag := func(name string, on bool) string {
		return fmt.Sprintf("--%s=%t", name, on)
	}
	return []string{
		flag("phone-detection", c.PhoneDetection),
		flag("face-detection", c.FaceDetection),
		flag("face-matching", c.FaceMatching),
		flag("eye-tracking", c.EyeTracking),
	}
}

// Config holds the launch prerequisites for the inference process.
type Config struct {
	PythonBin        string
	Script           string
	ParticipantImage string
	RingLines        int
}

// SpawnOptions parameterises one spawn.
type SpawnOptions struct {
	SessionID    string
	Capabilities Capabilities

	// OnOutput receives each stdout/stderr line; kind is "stdout" or
	// "stderr". Called from the capture goroutines.
	OnOutput func(line, kind string)
	// OnExit fires once when the process exits, with the exit code and
	// the terminating signal name (empty when not signalled).
	OnExit func(code int, signal string)
}

// proc is one tracked child process.
type proc struct {
	pid       int
	sessionID string
	startTime time.Time
	cmd       *exec.Cmd
	stdout    *lineRing
	stderr    *lineRing

	mu            sync.Mutex
	status        Status
	exitCode      int
	exitSignal    string
	termRequested bool
	killRequested bool

	// ioDone gates cmd.Wait until both pipes are drained, so no
	// trailing output lines are lost.
	ioDone sync.WaitGroup
	done   chan struct{}
}

func (p *proc) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

func (p *proc) getStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *proc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Supervisor manages inference process lifecycles.
type Supervisor struct {
	mu     sync.Mutex
	cfg    Config
	policy Capabilities
	active *proc
	procs  map[int]*proc
	log    zerolog.Logger
}

// New creates a supervisor with the given launch config and capability
// enable policy.
func New(cfg Config, policy Capabilities, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		policy: policy,
		procs:  make(map[int]*proc),
		log:    log,
	}
}

// SetParticipantImage updates the reference image used on subsequent
// spawns. A running process is unaffected.
func (s *Supervisor) SetParticipantImage(path string) {
	s.mu.Lock()
	s.cfg.ParticipantImage = path
	s.mu.Unlock()
	s.log.Info().Str("path", path).Msg("Participant image updated")
}

// Spawn validates prerequisites and starts the inference process. It
// fails fast when a process is already tracked as active, and returns
// the child pid on success.
func (s *Supervisor) Spawn(opts SpawnOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && !s.active.exited() {
		return 0, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, s.active.pid)
	}

	if checks := validate(s.cfg); failed(checks) {
		return 0, &ValidationError{Checks: checks}
	}

	effective := opts.Capabilities.Intersect(s.policy)

	args := []string{s.cfg.Script, "--session-id", opts.SessionID}
	args = append(args, effective.Args()...)
	if s.cfg.ParticipantImage != "" {
		args = append(args, "--participant-image", s.cfg.ParticipantImage)
	}

	cmd := exec.Command(s.cfg.PythonBin, args...)
	cmd.Env = append(os.Environ(), "PROCTOR_SESSION_ID="+opts.SessionID)
	// Own process group, so escalation can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting inference process: %w", err)
	}

	p := &proc{
		pid:       cmd.Process.Pid,
		sessionID: opts.SessionID,
		startTime: time.Now(),
		cmd:       cmd,
		stdout:    newLineRing(s.cfg.RingLines),
		stderr:    newLineRing(s.cfg.RingLines),
		status:    StatusSpawned,
		done:      make(chan struct{}),
	}
	s.active = p
	s.procs[p.pid] = p

	s.log.Info().
		Int("pid", p.pid).
		Str("session_id", opts.SessionID).
		Interface("capabilities", effective).
		Msg("Inference process spawned")

	p.ioDone.Add(2)
	go s.capture(p, stdout, "stdout", opts.OnOutput)
	go s.capture(p, stderr, "stderr", opts.OnOutput)
	go s.reap(p, opts.OnExit)

	p.setStatus(StatusRunning)
	return p.pid, nil
}

// capture drains one stdio stream into the ring buffer and the output
// callback.
func (s *Supervisor) capture(p *proc, r io.Reader, kind string, onOutput func(line, kind string)) {
	defer p.ioDone.Done()

	ring := p.stdout
	if kind == "stderr" {
		ring = p.stderr
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		ring.Append(line)
		if onOutput != nil {
			onOutput(line, kind)
		}
	}
}

// reap waits for process exit, classifies it and fires the exit callback.
func (s *Supervisor) reap(p *proc, onExit func(code int, signal string)) {
	p.ioDone.Wait()
	err := p.cmd.Wait()

	code := 0
	signal := ""
	if ps := p.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			signal = sigName(ws.Signal())
		}
	}

	p.mu.Lock()
	p.exitCode = code
	p.exitSignal = signal
	switch {
	case p.killRequested:
		p.status = StatusKilled
	case p.termRequested:
		p.status = StatusTerminated
	default:
		p.status = StatusExited
	}
	status := p.status
	requested := p.termRequested || p.killRequested
	p.mu.Unlock()

	close(p.done)

	s.mu.Lock()
	if s.active == p {
		s.active = nil
	}
	s.mu.Unlock()

	ev := s.log.Info()
	if err != nil && !requested {
		ev = s.log.Warn().Err(err)
	}
	ev.Int("pid", p.pid).
		Int("code", code).
		Str("signal", signal).
		Str("status", string(status)).
		Msg("Inference process exited")

	if onExit != nil {
		onExit(code, signal)
	}
}

func sigName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGINT:
		return "SIGINT"
	}
	return strings.ToUpper(sig.String())
}

// ActivePID returns the pid of the tracked active process, or 0.
func (s *Supervisor) ActivePID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.exited() {
		return 0
	}
	return s.active.pid
}

func (s *Supervisor) lookup(pid int) *proc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[pid]
}

// Logs returns up to n retained lines of the given stream ("stdout" or
// "stderr") for the most recently tracked process.
func (s *Supervisor) Logs(kind string, n int) ([]string, error) {
	s.mu.Lock()
	p := s.active
	if p == nil {
		// Fall back to the most recent exited process.
		for _, cand := range s.procs {
			if p == nil || cand.startTime.After(p.startTime) {
				p = cand
			}
		}
	}
	s.mu.Unlock()

	if p == nil {
		return nil, fmt.Errorf("no inference process has been spawned")
	}

	switch kind {
	case "stdout", "":
		return p.stdout.Last(n), nil
	case "stderr":
		return p.stderr.Last(n), nil
	default:
		return nil, fmt.Errorf("unknown log stream %q", kind)
	}
}
