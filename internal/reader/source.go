package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/your-org/attendance/internal/models"
)

// TagCallback is called for each tag the reader reports.
type TagCallback func(r models.TagReading)

// Source produces tag readings. Run blocks until ctx is done, the input ends
// (nil error) or the connection fails.
type Source interface {
	Run(ctx context.Context, callback TagCallback) error
}

// NormalizeUID trims and upper-cases a raw tag identifier. Readers that
// prefix the EPC with "EPC:" are accepted too.
func NormalizeUID(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) > 4 && strings.EqualFold(s[:4], "EPC:") {
		s = strings.TrimSpace(s[4:])
	}
	return strings.ToUpper(s)
}

// LineSource reads one tag UID per line. Empty lines and lines starting with
// '#' are skipped.
//
// A single goroutine reads R for the lifetime of the source, so lines that
// arrive while no Run is active still reach the most recent callback. Run
// returns when ctx is done or R is exhausted.
type LineSource struct {
	R        io.Reader
	DeviceID string
	Now      func() time.Time

	once     sync.Once
	mu       sync.Mutex
	callback TagCallback
	done     chan struct{}
	err      error
}

func (s *LineSource) Run(ctx context.Context, callback TagCallback) error {
	s.mu.Lock()
	s.callback = callback
	s.mu.Unlock()
	s.once.Do(func() {
		s.done = make(chan struct{})
		go s.pump()
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.err
	}
}

func (s *LineSource) pump() {
	defer close(s.done)
	s.err = readLines(s.R, s.DeviceID, s.now(), func(r models.TagReading) {
		s.mu.Lock()
		cb := s.callback
		s.mu.Unlock()
		cb(r)
	})
}

func (s *LineSource) now() func() time.Time {
	if s.Now != nil {
		return s.Now
	}
	return time.Now
}

// readLines hands every line to callback, including lines still buffered
// when r fails, and returns nil at EOF.
func readLines(r io.Reader, deviceID string, now func() time.Time, callback TagCallback) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uid := NormalizeUID(line)
		if uid == "" {
			continue
		}
		callback(models.TagReading{RFIDUID: uid, DeviceID: deviceID, ObservedAt: now()})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read tags: %w", err)
	}
	return nil
}

// TCPSource connects to a serial-to-TCP bridge that forwards one UID per
// line.
type TCPSource struct {
	Address     string
	DeviceID    string
	DialTimeout time.Duration
}

func (s *TCPSource) Run(ctx context.Context, callback TagCallback) error {
	timeout := s.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", s.Address)
	if err != nil {
		return fmt.Errorf("dial reader %s: %w", s.Address, err)
	}
	slog.Info("connected to reader", "address", s.Address, "device_id", s.DeviceID)

	// Unblock the scanner when ctx is cancelled.
	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	stop := context.AfterFunc(ctx, closeConn)
	defer func() {
		stop()
		closeConn()
	}()

	err = readLines(conn, s.DeviceID, time.Now, callback)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	// The bridge closing the connection is a failure for a long-lived reader.
	return fmt.Errorf("reader %s closed the connection", s.Address)
}
