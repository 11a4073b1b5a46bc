package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Check is the outcome of one prerequisite validation.
type Check struct {
	Name   string
	Path   string
	OK     bool
	Detail string
}

// ValidationError reports every failed prerequisite check, not just the
// first one.
type ValidationError struct {
	Checks []Check
}

func (e *ValidationError) Error() string {
	var failedNames []string
	for _, c := range e.Checks {
		if !c.OK {
			failedNames = append(failedNames, fmt.Sprintf("%s (%s): %s", c.Name, c.Path, c.Detail))
		}
	}
	return "prerequisite validation failed: " + strings.Join(failedNames, "; ")
}

// Failed returns only the checks that did not pass.
func (e *ValidationError) Failed() []Check {
	var out []Check
	for _, c := range e.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Validate runs the prerequisite checks for the current configuration
// and returns all of them, passed and failed.
func (s *Supervisor) Validate() []Check {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return validate(cfg)
}

func validate(cfg Config) []Check {
	checks := []Check{
		checkExecutable("python_bin", cfg.PythonBin),
		checkFile("script", cfg.Script),
	}
	if cfg.ParticipantImage != "" {
		checks = append(checks, checkFile("participant_image", cfg.ParticipantImage))
	}
	return checks
}

func failed(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return true
		}
	}
	return false
}

func checkExecutable(name, path string) Check {
	c := Check{Name: name, Path: path}
	if path == "" {
		c.Detail = "not configured"
		return c
	}
	if strings.ContainsRune(path, os.PathSeparator) {
		if _, err := os.Stat(path); err != nil {
			c.Detail = err.Error()
			return c
		}
		c.OK = true
		return c
	}
	if _, err := exec.LookPath(path); err != nil {
		c.Detail = err.Error()
		return c
	}
	c.OK = true
	return c
}

func checkFile(name, path string) Check {
	c := Check{Name: name, Path: path}
	if path == "" {
		c.Detail = "not configured"
		return c
	}
	info, err := os.Stat(path)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if info.IsDir() {
		c.Detail = "is a directory"
		return c
	}
	c.OK = true
	return c
}
