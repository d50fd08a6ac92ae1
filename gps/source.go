package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// Source produces receiver fixes. Next blocks until a fix is available and
// returns io.EOF when the source is exhausted.
type Source interface {
	Next(ctx context.Context) (Fix, error)
}

// OpenSerial opens a serial port configured for an NMEA receiver (8N1).
func OpenSerial(port string, baudRate int) (serial.Port, error) {
	if baudRate <= 0 {
		return nil, ErrInvalidBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return p, nil
}

// NMEASource decodes fixes from an NMEA 0183 byte stream such as a serial
// port, a pipe or a log file.
type NMEASource struct {
	r       io.Reader
	scanner *bufio.Scanner
	decoder Decoder

	mu       sync.Mutex
	rejected int
}

// NewNMEASource creates a source reading sentences from r.
func NewNMEASource(r io.Reader) *NMEASource {
	return &NMEASource{r: r, scanner: bufio.NewScanner(r)}
}

// Next returns the next decoded fix. Sentences failing framing or checksum
// checks are counted and skipped.
func (s *NMEASource) Next(ctx context.Context) (Fix, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Fix{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Fix{}, err
			}
			return Fix{}, io.EOF
		}

		fix, ok, err := s.decoder.Feed(s.scanner.Text())
		switch {
		case errors.Is(err, ErrUnsupportedSentence):
			continue
		case err != nil:
			s.mu.Lock()
			s.rejected++
			s.mu.Unlock()
			continue
		case ok:
			return fix, nil
		}
	}
}

// Rejected returns how many sentences were dropped as corrupt.
func (s *NMEASource) Rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// Close closes the underlying reader if it is closable. It unblocks a
// pending Next.
func (s *NMEASource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
