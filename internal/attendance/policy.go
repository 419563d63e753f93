package attendance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/attendance/internal/observability"
)

// ErrInvalidPolicy is returned when a policy fails validation.
var ErrInvalidPolicy = errors.New("invalid policy")

const day = 24 * time.Hour

// TimeOfDay is a wall-clock offset from local midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return ClockOf(t), nil
}

// ClockOf returns the wall-clock time of day of t in t's own location.
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Window is an inclusive time-of-day range.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Contains reports whether t falls inside the window, boundaries included.
func (w Window) Contains(t TimeOfDay) bool {
	return w.Start <= t && t <= w.End
}

func (w Window) wellFormed() bool {
	return w.Start >= 0 && w.Start <= w.End && time.Duration(w.End) < day
}

func (w Window) overlaps(o Window) bool {
	return w.Start <= o.End && o.Start <= w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Policy is an immutable snapshot of the attendance rules.
type Policy struct {
	CheckIn  Window
	CheckOut Window
	Cooldown time.Duration
	DeviceID string
	Version  uint64
}

// DefaultPolicy mirrors the seed values written to system_config.
func DefaultPolicy() Policy {
	return Policy{
		CheckIn:  Window{Start: hm(8, 45), End: hm(9, 15)},
		CheckOut: Window{Start: hm(17, 45), End: hm(18, 15)},
		Cooldown: 10 * time.Second,
		DeviceID: "MAIN_ENTRANCE",
	}
}

func hm(h, m int) TimeOfDay {
	return TimeOfDay(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func (p Policy) wellFormed() bool {
	return p.CheckIn.wellFormed() && p.CheckOut.wellFormed() && p.Cooldown >= 0
}

// Validate rejects inverted or overlapping windows and negative cooldowns.
func (p Policy) Validate() error {
	if !p.CheckIn.wellFormed() {
		return fmt.Errorf("%w: check-in window %s", ErrInvalidPolicy, p.CheckIn)
	}
	if !p.CheckOut.wellFormed() {
		return fmt.Errorf("%w: check-out window %s", ErrInvalidPolicy, p.CheckOut)
	}
	if p.CheckIn.overlaps(p.CheckOut) {
		return fmt.Errorf("%w: check-in window %s overlaps check-out window %s", ErrInvalidPolicy, p.CheckIn, p.CheckOut)
	}
	if p.Cooldown < 0 {
		return fmt.Errorf("%w: negative scan cooldown %s", ErrInvalidPolicy, p.Cooldown)
	}
	return nil
}

// Values renders the policy as system_config key/value pairs.
func (p Policy) Values() map[string]string {
	return map[string]string{
		"checkin_start":  p.CheckIn.Start.String(),
		"checkin_end":    p.CheckIn.End.String(),
		"checkout_start": p.CheckOut.Start.String(),
		"checkout_end":   p.CheckOut.End.String(),
		"scan_cooldown":  strconv.Itoa(int(p.Cooldown / time.Second)),
		"reader_id":      p.DeviceID,
	}
}

// ParsePolicy builds a validated policy from system_config values.
// Missing keys keep their DefaultPolicy value.
func ParsePolicy(values map[string]string) (Policy, error) {
	p := DefaultPolicy()

	times := []struct {
		key string
		dst *TimeOfDay
	}{
		{"checkin_start", &p.CheckIn.Start},
		{"checkin_end", &p.CheckIn.End},
		{"checkout_start", &p.CheckOut.Start},
		{"checkout_end", &p.CheckOut.End},
	}
	for _, f := range times {
		v, ok := values[f.key]
		if !ok || v == "" {
			continue
		}
		t, err := ParseTimeOfDay(v)
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, f.key, err)
		}
		*f.dst = t
	}

	if v, ok := values["scan_cooldown"]; ok && v != "" {
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Policy{}, fmt.Errorf("%w: scan_cooldown: %v", ErrInvalidPolicy, err)
		}
		p.Cooldown = time.Duration(secs) * time.Second
	}
	if v, ok := values["reader_id"]; ok && v != "" {
		p.DeviceID = v
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// ConfigSource reads the persisted policy values.
type ConfigSource interface {
	ConfigValues(ctx context.Context) (map[string]string, error)
}

// PolicyHolder publishes policy snapshots. Readers never block writers and
// always observe a complete, validated policy.
type PolicyHolder struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Policy]
}

// NewPolicyHolder starts from initial, which must be valid.
func NewPolicyHolder(initial Policy) (*PolicyHolder, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	h := &PolicyHolder{}
	initial.Version = 1
	h.current.Store(&initial)
	observability.PolicyVersion.Set(1)
	return h, nil
}

// Current returns the active snapshot.
func (h *PolicyHolder) Current() Policy {
	return *h.current.Load()
}

// Update validates p and makes it the active policy. On error the previous
// policy stays active.
func (h *PolicyHolder) Update(p Policy) (Policy, error) {
	if err := p.Validate(); err != nil {
		return h.Current(), err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	p.Version = h.current.Load().Version + 1
	h.current.Store(&p)
	observability.PolicyVersion.Set(float64(p.Version))
	return p, nil
}

// Reload re-reads the policy from src. Read or parse failures keep the last
// valid policy.
func (h *PolicyHolder) Reload(ctx context.Context, src ConfigSource) (Policy, error) {
	values, err := src.ConfigValues(ctx)
	if err != nil {
		return h.Current(), fmt.Errorf("read policy: %w", err)
	}
	p, err := ParsePolicy(values)
	if err != nil {
		return h.Current(), err
	}
	return h.Update(p)
}
