package supervisor

import (
	"syscall"
	"time"
)

// TerminateResult is the outcome of one termination attempt.
type TerminateResult string

const (
	ExitedGracefully TerminateResult = "exitedGracefully"
	Killed           TerminateResult = "killed"
	AlreadyExited    TerminateResult = "alreadyExited"
	NotFound         TerminateResult = "notFound"
)

// Terminate asks pid to stop with SIGTERM and waits up to timeout for
// it to exit. A process still alive past the deadline is killed with
// SIGKILL. The escalation itself is not an error; the result reports
// which path was taken.
func (s *Supervisor) Terminate(pid int, timeout time.Duration) TerminateResult {
	p := s.lookup(pid)
	if p == nil {
		return NotFound
	}
	if p.exited() {
		return AlreadyExited
	}

	p.mu.Lock()
	p.termRequested = true
	p.mu.Unlock()

	// Signal the process group so detector worker children go too.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			// Exited between the check and the signal.
			select {
			case <-p.done:
				return AlreadyExited
			case <-time.After(time.Second):
				return NotFound
			}
		}
		s.log.Warn().Err(err).Int("pid", pid).Msg("SIGTERM failed, trying direct signal")
		syscall.Kill(pid, syscall.SIGTERM)
	}

	select {
	case <-p.done:
		s.log.Info().Int("pid", pid).Msg("Inference process exited gracefully")
		return ExitedGracefully
	case <-time.After(timeout):
	}

	// Deadline passed: escalate.
	p.mu.Lock()
	p.killRequested = true
	p.mu.Unlock()

	s.log.Warn().Int("pid", pid).Dur("timeout", timeout).Msg("Graceful stop timed out, escalating to SIGKILL")
	syscall.Kill(-pid, syscall.SIGKILL)
	syscall.Kill(pid, syscall.SIGKILL)

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		s.log.Error().Int("pid", pid).Msg("Process did not exit after SIGKILL")
	}
	return Killed
}

// TerminateAll attempts a graceful stop of every tracked live process
// under one aggregate deadline. A failure on one process never stops
// the attempt on the others. Intended for host shutdown, so no
// inference process is orphaned.
func (s *Supervisor) TerminateAll(timeout time.Duration) map[int]TerminateResult {
	s.mu.Lock()
	var live []int
	for pid, p := range s.procs {
		if !p.exited() {
			live = append(live, pid)
		}
	}
	s.mu.Unlock()

	results := make(map[int]TerminateResult, len(live))
	deadline := time.Now().Add(timeout)

	for _, pid := range live {
		remaining := time.Until(deadline)
		if remaining < 100*time.Millisecond {
			// Budget exhausted: go straight to the forceful path.
			remaining = 100 * time.Millisecond
		}
		results[pid] = s.Terminate(pid, remaining)
	}
	return results
}
