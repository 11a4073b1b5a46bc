package framechan

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFlagFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frames_flag.mmap")
	if err := os.WriteFile(path, []byte{1, 0, 0, 0}, 0644); err != nil {
		t.Fatalf("write flag file: %v", err)
	}
	return path
}

func TestPreviewFlag_RoundTrip(t *testing.T) {
	path := writeFlagFile(t)
	flag := OpenPreviewFlag(path, testLogger())
	defer flag.Close()

	if err := flag.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if v, ok := flag.Read(); !ok || v != 1 {
		t.Errorf("after enable: got (%d, %v), want (1, true)", v, ok)
	}

	if err := flag.Disable(); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if v, ok := flag.Read(); !ok || v != 0 {
		t.Errorf("after disable: got (%d, %v), want (0, true)", v, ok)
	}

	// Idempotent repeat.
	if err := flag.Disable(); err != nil {
		t.Fatalf("second disable: %v", err)
	}
	if v, _ := flag.Read(); v != 0 {
		t.Errorf("after second disable: got %d, want 0", v)
	}
}

func TestPreviewFlag_MissingFileDegradesToNoop(t *testing.T) {
	flag := OpenPreviewFlag(filepath.Join(t.TempDir(), "absent_flag.mmap"), testLogger())
	defer flag.Close()

	if err := flag.Enable(); err != nil {
		t.Errorf("enable on missing file should be a no-op, got %v", err)
	}
	if err := flag.Disable(); err != nil {
		t.Errorf("disable on missing file should be a no-op, got %v", err)
	}
	if _, ok := flag.Read(); ok {
		t.Error("read on missing file should report unavailable")
	}
}

func TestPreviewFlag_LazyOpenPicksUpLateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late_flag.mmap")

	flag := OpenPreviewFlag(path, testLogger())
	defer flag.Close()

	// Not there yet: no-op.
	if err := flag.Enable(); err != nil {
		t.Fatalf("enable before file exists: %v", err)
	}

	// Producer creates the flag file later.
	if err := os.WriteFile(path, []byte{0, 0, 0, 0}, 0644); err != nil {
		t.Fatalf("create flag file: %v", err)
	}

	if err := flag.Enable(); err != nil {
		t.Fatalf("enable after file exists: %v", err)
	}
	if v, ok := flag.Read(); !ok || v != 1 {
		t.Errorf("got (%d, %v), want (1, true)", v, ok)
	}
}

func TestPreviewFlag_CloseIdempotent(t *testing.T) {
	flag := OpenPreviewFlag(writeFlagFile(t), testLogger())
	if err := flag.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := flag.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := flag.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
