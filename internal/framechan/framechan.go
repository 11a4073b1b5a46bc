// Package framechan reads video frames from the file-backed frame
// transport shared with the inference process.
//
// The producer writes a fixed 24-byte header (six uint32 little-endian
// fields) followed by an opaque encoded payload into a preallocated
// file. Nothing synchronises the producer's writes with our reads:
// readers poll, accept torn reads as soft failures, and simply retry on
// the next tick. A reader can never tell a repeated frame from a fresh
// one without comparing the timestamp fields; that is a property of the
// protocol, not a bug.
package framechan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// HeaderSize is the fixed byte length of the frame header.
	HeaderSize = 24

	// DefaultMaxPayload fits one full-HD BGR frame, matching the
	// producer's buffer allocation.
	DefaultMaxPayload = 1920 * 1080 * 3
)

var (
	// ErrNotFound indicates the transport file does not exist.
	ErrNotFound = errors.New("frame transport file not found")
	// ErrTooSmall indicates the transport file is smaller than header + max payload.
	ErrTooSmall = errors.New("frame transport file too small")
	// ErrCorruptData indicates a declared payload size beyond the transport bound.
	ErrCorruptData = errors.New("frame payload size out of bounds")
	// ErrClosed indicates an operation on a closed channel.
	ErrClosed = errors.New("frame channel is closed")
)

// Header is the fixed frame header written by the producer at offset 0.
// Field order matches the wire layout.
type Header struct {
	Width         uint32
	Height        uint32
	Channels      uint32
	TimestampSec  uint32
	TimestampUsec uint32
	PayloadSize   uint32
}

// Empty reports the uninitialised-producer state: the producer zeroes
// the header on creation, so a zero width, height or payload size means
// no frame has been written yet.
func (h Header) Empty() bool {
	return h.Width == 0 || h.Height == 0 || h.PayloadSize == 0
}

// Timestamp converts the header's second/microsecond fields to a time.Time.
func (h Header) Timestamp() time.Time {
	return time.Unix(int64(h.TimestampSec), int64(h.TimestampUsec)*1000)
}

func decodeHeader(buf []byte) Header {
	return Header{
		Width:         binary.LittleEndian.Uint32(buf[0:4]),
		Height:        binary.LittleEndian.Uint32(buf[4:8]),
		Channels:      binary.LittleEndian.Uint32(buf[8:12]),
		TimestampSec:  binary.LittleEndian.Uint32(buf[12:16]),
		TimestampUsec: binary.LittleEndian.Uint32(buf[16:20]),
		PayloadSize:   binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// Frame is one frame read from the transport. The payload is the
// producer's already-encoded image data and is forwarded as-is.
type Frame struct {
	Header  Header
	Payload []byte
}

// Channel is a read-only view of the frame transport file. Each Channel
// exclusively owns its file handle for its open lifetime.
type Channel struct {
	mu         sync.Mutex
	path       string
	maxPayload uint32
	f          *os.File
	log        zerolog.Logger
}

// Open validates and opens the frame transport file. The file must
// exist and be large enough to hold a header plus maxPayload bytes
// (zero maxPayload selects DefaultMaxPayload).
func Open(path string, maxPayload uint32, log zerolog.Logger) (*Channel, error) {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() < int64(HeaderSize)+int64(maxPayload) {
		return nil, fmt.Errorf("%w: %s is %d bytes, need %d",
			ErrTooSmall, path, info.Size(), HeaderSize+int(maxPayload))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	log.Debug().Str("path", path).Uint32("max_payload", maxPayload).Msg("Frame channel opened")

	return &Channel{
		path:       path,
		maxPayload: maxPayload,
		f:          f,
		log:        log,
	}, nil
}

// IsOpen reports whether the underlying handle is still held.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f != nil
}

// ReadHeader reads the 24-byte header region fresh on every call.
// ok is false when the producer has not written a frame yet.
func (c *Channel) ReadHeader() (hdr Header, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.f == nil {
		return Header{}, false, ErrClosed
	}

	buf := make([]byte, HeaderSize)
	if _, err := c.f.ReadAt(buf, 0); err != nil {
		return Header{}, false, fmt.Errorf("reading header: %w", err)
	}

	hdr = decodeHeader(buf)
	return hdr, !hdr.Empty(), nil
}

// ReadFrame reads the current frame. It returns (nil, nil) when the
// producer has not written anything yet, and ErrCorruptData when the
// declared payload size exceeds the transport bound; in that case the
// payload region is not touched.
func (c *Channel) ReadFrame() (*Frame, error) {
	hdr, ok, err := c.ReadHeader()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if hdr.PayloadSize > c.maxPayload {
		return nil, fmt.Errorf("%w: declared %d, max %d", ErrCorruptData, hdr.PayloadSize, c.maxPayload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil, ErrClosed
	}

	payload := make([]byte, hdr.PayloadSize)
	if _, err := c.f.ReadAt(payload, HeaderSize); err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	return &Frame{Header: hdr, Payload: payload}, nil
}

// Close releases the file handle. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	c.log.Debug().Str("path", c.path).Msg("Frame channel closed")
	return err
}
