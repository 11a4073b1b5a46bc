package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// writeScript creates an executable shell script standing in for the
// inference process.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proctor.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func testSupervisor(t *testing.T, scriptBody string) *Supervisor {
	t.Helper()
	cfg := Config{
		PythonBin: "sh",
		Script:    writeScript(t, scriptBody),
		RingLines: 50,
	}
	policy := Capabilities{PhoneDetection: true, FaceDetection: true, FaceMatching: true, EyeTracking: true}
	s := New(cfg, policy, testLogger())
	t.Cleanup(func() { s.TerminateAll(2 * time.Second) })
	return s
}

func TestValidate_EnumeratesAllFailures(t *testing.T) {
	cfg := Config{
		PythonBin:        "definitely-not-a-binary-xyz",
		Script:           "/nonexistent/proctor_main.py",
		ParticipantImage: "/nonexistent/participant.png",
	}
	s := New(cfg, Capabilities{}, testLogger())

	checks := s.Validate()
	var failures int
	for _, c := range checks {
		if !c.OK {
			failures++
		}
	}
	if failures != 3 {
		t.Errorf("expected 3 failed checks, got %d (%+v)", failures, checks)
	}

	_, err := s.Spawn(SpawnOptions{SessionID: "s1"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Failed()) != 3 {
		t.Errorf("ValidationError.Failed: got %d, want 3", len(verr.Failed()))
	}
}

func TestSpawn_CapturesOutputAndExit(t *testing.T) {
	s := testSupervisor(t, `echo "hello from detector"; echo "oops" >&2`)

	var mu sync.Mutex
	var lines []string
	exited := make(chan struct{})

	pid, err := s.Spawn(SpawnOptions{
		SessionID:    "sess-1",
		Capabilities: Capabilities{FaceDetection: true},
		OnOutput: func(line, kind string) {
			mu.Lock()
			lines = append(lines, kind+": "+line)
			mu.Unlock()
		},
		OnExit: func(code int, signal string) {
			if code != 0 {
				t.Errorf("exit code: got %d, want 0", code)
			}
			if signal != "" {
				t.Errorf("signal: got %q, want empty", signal)
			}
			close(exited)
		},
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("bad pid %d", pid)
	}

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("process never exited")
	}

	mu.Lock()
	joined := strings.Join(lines, "\n")
	mu.Unlock()
	if !strings.Contains(joined, "stdout: hello from detector") {
		t.Errorf("missing stdout line, got:\n%s", joined)
	}
	if !strings.Contains(joined, "stderr: oops") {
		t.Errorf("missing stderr line, got:\n%s", joined)
	}

	out, err := s.Logs("stdout", 10)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(out) == 0 || out[len(out)-1] != "hello from detector" {
		t.Errorf("ring stdout: got %v", out)
	}

	st := s.Status()
	if st.Running {
		t.Error("status still reports running")
	}
	if st.Status != StatusExited {
		t.Errorf("status: got %s, want exited", st.Status)
	}
}

func TestSpawn_SecondRejectedWhileActive(t *testing.T) {
	s := testSupervisor(t, "sleep 30")

	pid, err := s.Spawn(SpawnOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("first spawn: %v", err)
	}

	if _, err := s.Spawn(SpawnOptions{SessionID: "sess-2"}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second spawn: got %v, want ErrAlreadyRunning", err)
	}

	// The first process is untouched by the rejection.
	if s.ActivePID() != pid {
		t.Errorf("active pid changed: got %d, want %d", s.ActivePID(), pid)
	}
	st := s.Status()
	if !st.Running || st.PID != pid {
		t.Errorf("first process disturbed: %+v", st)
	}

	if res := s.Terminate(pid, 2*time.Second); res != ExitedGracefully {
		t.Errorf("terminate: got %s, want exitedGracefully", res)
	}
}

func TestTerminate_Graceful(t *testing.T) {
	s := testSupervisor(t, "sleep 30")

	pid, err := s.Spawn(SpawnOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	if res := s.Terminate(pid, 2*time.Second); res != ExitedGracefully {
		t.Errorf("got %s, want exitedGracefully", res)
	}

	if res := s.Terminate(pid, time.Second); res != AlreadyExited {
		t.Errorf("repeat terminate: got %s, want alreadyExited", res)
	}
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	// The script ignores SIGTERM, forcing the SIGKILL path.
	s := testSupervisor(t, `trap "" TERM INT
while true; do sleep 1; done`)

	pid, err := s.Spawn(SpawnOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	// Give the shell a moment to install the trap.
	time.Sleep(200 * time.Millisecond)

	if res := s.Terminate(pid, 500*time.Millisecond); res != Killed {
		t.Errorf("got %s, want killed", res)
	}

	st := s.Status()
	if st.Status != StatusKilled {
		t.Errorf("status: got %s, want killed", st.Status)
	}
}

func TestTerminate_NotFound(t *testing.T) {
	s := testSupervisor(t, "true")
	if res := s.Terminate(99999999, time.Second); res != NotFound {
		t.Errorf("got %s, want notFound", res)
	}
}

func TestTerminateAll(t *testing.T) {
	s := testSupervisor(t, "sleep 30")

	pid, err := s.Spawn(SpawnOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	results := s.TerminateAll(3 * time.Second)
	if res, ok := results[pid]; !ok || (res != ExitedGracefully && res != Killed) {
		t.Errorf("results: %v", results)
	}
	if s.ActivePID() != 0 {
		t.Errorf("active pid after TerminateAll: %d", s.ActivePID())
	}
}

func TestCapabilities_PolicyOnlyDisables(t *testing.T) {
	requested := Capabilities{PhoneDetection: true, FaceDetection: true, FaceMatching: true, EyeTracking: false}
	policy := Capabilities{PhoneDetection: true, FaceDetection: false, FaceMatching: true, EyeTracking: true}

	got := requested.Intersect(policy)
	want := Capabilities{PhoneDetection: true, FaceDetection: false, FaceMatching: true, EyeTracking: false}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCapabilities_Args(t *testing.T) {
	args := Capabilities{PhoneDetection: true}.Args()
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--phone-detection=true") {
		t.Errorf("missing phone flag: %v", args)
	}
	if !strings.Contains(joined, "--eye-tracking=false") {
		t.Errorf("missing disabled eye flag: %v", args)
	}
}

func TestSetParticipantImage_AffectsNextSpawnOnly(t *testing.T) {
	s := testSupervisor(t, "sleep 30")

	pid, err := s.Spawn(SpawnOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	s.SetParticipantImage("/nonexistent/new.png")

	// Running process is unaffected.
	if st := s.Status(); !st.Running || st.PID != pid {
		t.Errorf("running process disturbed: %+v", st)
	}

	s.Terminate(pid, 2*time.Second)

	// The next spawn validates the new image path and fails.
	_, err = s.Spawn(SpawnOptions{SessionID: "sess-2"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for missing image, got %v", err)
	}
}

func TestLogs_NoProcess(t *testing.T) {
	s := testSupervisor(t, "true")
	if _, err := s.Logs("stdout", 10); err == nil {
		t.Error("expected error when nothing was spawned")
	}
}
