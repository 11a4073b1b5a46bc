package framechan

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// PreviewFlag is the consumer-to-producer backpressure signal: a
// separate 4-byte file holding a uint32 LE, 1 while a consumer is
// streaming and the producer should keep encoding frames, 0 otherwise.
//
// The flag is an optimisation, not a correctness requirement. Opening
// is lazy and a missing file degrades every operation to a warned
// no-op instead of an error.
type PreviewFlag struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	warned bool
	log    zerolog.Logger
}

// OpenPreviewFlag returns a preview flag bound to path. The file is not
// touched until the first Enable/Disable/Read.
func OpenPreviewFlag(path string, log zerolog.Logger) *PreviewFlag {
	return &PreviewFlag{path: path, log: log}
}

// ensureOpen opens the flag file on first use. Returns false when the
// file is absent, after warning once.
func (p *PreviewFlag) ensureOpen() bool {
	if p.f != nil {
		return true
	}
	f, err := os.OpenFile(p.path, os.O_RDWR, 0)
	if err != nil {
		if !p.warned {
			p.warned = true
			p.log.Warn().Err(err).Str("path", p.path).Msg("Preview flag unavailable, control is a no-op")
		}
		return false
	}
	p.f = f
	p.warned = false
	return true
}

// Enable tells the producer to write frames.
func (p *PreviewFlag) Enable() error {
	return p.write(1)
}

// Disable tells the producer to skip frame encode/write work.
func (p *PreviewFlag) Disable() error {
	return p.write(0)
}

func (p *PreviewFlag) write(v uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ensureOpen() {
		return nil
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := p.f.WriteAt(buf[:], 0); err != nil {
		return fmt.Errorf("writing preview flag: %w", err)
	}
	return nil
}

// Read returns the current flag value, or (0, false) when the flag
// file is unavailable.
func (p *PreviewFlag) Read() (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ensureOpen() {
		return 0, false
	}

	var buf [4]byte
	if _, err := p.f.ReadAt(buf[:], 0); err != nil {
		p.log.Warn().Err(err).Msg("Reading preview flag failed")
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[:]), true
}

// Close releases the flag handle. Safe to call more than once.
func (p *PreviewFlag) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	p.f = nil
	return err
}
