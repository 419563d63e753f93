package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attendance/internal/models"
)

const (
	EventsStreamName  = "ATTENDANCE"
	EventsSubjectBase = "attendance"
)

// Connect dials NATS and keeps reconnecting in the background.
func Connect(natsURL, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(nc *nats.Conn) (*Producer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        EventsStreamName,
			Subjects:    []string{EventsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  30 * time.Second,
			Description: "Attendance status updates for dashboards",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// EventSubject is the subject an attendance event is published on, e.g.
// attendance.main_entrance.checked_in.
func EventSubject(ev models.AttendanceEvent) string {
	device := subjectToken(ev.DeviceID)
	if device == "" {
		device = "unknown"
	}
	return fmt.Sprintf("%s.%s.%s", EventsSubjectBase, device, subjectToken(ev.Action))
}

func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, strings.ToLower(s))
}

// PublishAttendance publishes a check-in/check-out notification. The message
// ID deduplicates redeliveries within the stream's duplicate window.
func (p *Producer) PublishAttendance(ctx context.Context, ev models.AttendanceEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal attendance event: %w", err)
	}

	msgID := fmt.Sprintf("%s-%s-%d", ev.EmployeeID, subjectToken(ev.Action), ev.OccurredAt.UnixNano())
	_, err = p.js.Publish(ctx, EventSubject(ev), payload, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publish attendance event: %w", err)
	}
	return nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
