package reader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/pkg/dto"
)

// Engine is the part of attendance.Engine the manager drives.
type Engine interface {
	Start() bool
	Stop() bool
	Status() attendance.Status
	Today() string
	HandleScan(ctx context.Context, r models.TagReading) (*models.ScanLogEntry, error)
	ClearDay(ctx context.Context, date string) (int, error)
}

// PolicyReloader re-reads the persisted policy and makes it active.
type PolicyReloader func(ctx context.Context) (attendance.Policy, error)

type Options struct {
	// MaxRetries is the number of reconnect attempts after a source failure.
	MaxRetries int
	// Backoff returns the delay before reconnect attempt n (1-based).
	Backoff func(attempt int) time.Duration
	// DeviceID is used for injected scans without one.
	DeviceID string
}

// DefaultBackoff waits 2s, 4s, 8s, ...
func DefaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Manager owns the reader lifecycle: it starts and stops the engine, runs
// the tag source with reconnects and answers control commands.
type Manager struct {
	engine Engine
	source Source // nil: scans only arrive through HandleCommand
	reload PolicyReloader
	opts   Options

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(engine Engine, source Source, reload PolicyReloader, opts Options) *Manager {
	if opts.Backoff == nil {
		opts.Backoff = DefaultBackoff
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Manager{engine: engine, source: source, reload: reload, opts: opts}
}

// Start enables scanning and launches the source loop. It reports false when
// the reader was already running.
func (m *Manager) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.engine.Start() {
		return false
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.gen++
	if m.source == nil {
		slog.Info("reader started", "source", "none")
		return true
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	gen := m.gen
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx, gen)
	}()
	slog.Info("reader started")
	return true
}

// Stop disables scanning and cancels the source loop. Scans already being
// handled finish. It reports false when the reader was not running.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopped := m.engine.Stop()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if stopped {
		slog.Info("reader stopped")
	}
	return stopped
}

func (m *Manager) Status() attendance.Status {
	return m.engine.Status()
}

// Wait blocks until the source loop has exited or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(ctx context.Context, gen uint64) {
	attempt := 0
	// Lines read after Stop are still logged; the stopped engine rejects them.
	scanCtx := context.WithoutCancel(ctx)
	for {
		var delivered atomic.Bool
		err := m.source.Run(ctx, func(r models.TagReading) {
			delivered.Store(true)
			m.scan(scanCtx, r)
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			slog.Info("reader input ended")
			m.sourceGone(gen)
			return
		}
		if delivered.Load() {
			attempt = 0
		}
		slog.Error("reader failed", "attempt", attempt, "error", err)

		attempt++
		if attempt > m.opts.MaxRetries {
			slog.Error("reader failed after retries", "retries", m.opts.MaxRetries)
			m.sourceGone(gen)
			return
		}
		delay := m.opts.Backoff(attempt)
		slog.Warn("retrying reader connection", "attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// sourceGone stops the engine unless the reader has been restarted since gen.
func (m *Manager) sourceGone(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.engine.Stop()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) scan(ctx context.Context, r models.TagReading) *models.ScanLogEntry {
	entry, err := m.engine.HandleScan(ctx, r)
	if err != nil {
		slog.Error("handle scan", "rfid_uid", r.RFIDUID, "error", err)
	}
	return entry
}

// HandleCommand processes a reader control command.
func (m *Manager) HandleCommand(ctx context.Context, cmd dto.ReaderCommand) dto.ReaderReply {
	switch cmd.Action {
	case dto.ActionStart:
		msg := "Reader already running"
		if m.Start(context.WithoutCancel(ctx)) {
			msg = "Reader started"
		}
		return m.reply(true, msg)

	case dto.ActionStop:
		msg := "Reader is not running"
		if m.Stop() {
			msg = "Reader stopped"
		}
		return m.reply(true, msg)

	case dto.ActionStatus:
		return m.reply(true, "")

	case dto.ActionClearToday:
		date := m.engine.Today()
		n, err := m.engine.ClearDay(ctx, date)
		if err != nil {
			slog.Error("clear today", "date", date, "error", err)
			return m.reply(false, err.Error())
		}
		r := m.reply(true, fmt.Sprintf("Cleared %d attendance records for %s", n, date))
		r.Cleared = n
		return r

	case dto.ActionReloadPolicy:
		if m.reload == nil {
			return m.reply(false, "policy reload not configured")
		}
		p, err := m.reload(ctx)
		if err != nil {
			slog.Error("reload policy", "error", err)
			r := m.reply(false, err.Error())
			r.PolicyVersion = p.Version
			return r
		}
		slog.Info("policy reloaded", "version", p.Version,
			"checkin", p.CheckIn.String(), "checkout", p.CheckOut.String(), "cooldown", p.Cooldown)
		r := m.reply(true, fmt.Sprintf("Policy version %d active", p.Version))
		r.PolicyVersion = p.Version
		return r

	case dto.ActionScan:
		uid := NormalizeUID(cmd.RFIDUID)
		if uid == "" {
			return m.reply(false, "rfid_uid is required")
		}
		device := cmd.DeviceID
		if device == "" {
			device = m.opts.DeviceID
		}
		entry := m.scan(ctx, models.TagReading{RFIDUID: uid, DeviceID: device, ObservedAt: time.Now()})
		if entry == nil {
			return m.reply(false, "scan not handled")
		}
		view := dto.NewScanLogResponse(entry)
		r := m.reply(entry.Status == models.ScanStatusSuccess, entry.Note)
		r.Scan = &view
		return r

	default:
		return m.reply(false, fmt.Sprintf("unknown action: %s", cmd.Action))
	}
}

func (m *Manager) reply(success bool, msg string) dto.ReaderReply {
	return dto.ReaderReply{Success: success, Message: msg, Running: m.engine.Status().Running}
}
