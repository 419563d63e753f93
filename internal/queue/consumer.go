package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attendance/internal/models"
)

// EventHandler receives decoded attendance events.
type EventHandler func(ctx context.Context, ev models.AttendanceEvent) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(nc *nats.Conn) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeEvents starts consuming attendance events (for the API to broadcast
// via WebSocket). Only events published after the consumer is created are
// delivered. Undecodable messages are terminated instead of redelivered.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler EventHandler) error {
	stream, err := c.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch attendance events", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var ev models.AttendanceEvent
				if err := json.Unmarshal(msg.Data(), &ev); err != nil {
					slog.Error("decode attendance event", "subject", msg.Subject(), "error", err)
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, ev); err != nil {
					slog.Error("process attendance event", "subject", msg.Subject(), "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("attendance event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
