package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/your-org/attendance/pkg/dto"
)

// ControlSubject carries reader control requests (raw NATS request/reply,
// not JetStream).
const ControlSubject = "reader.control"

// ControlHandler answers one control command.
type ControlHandler func(ctx context.Context, cmd dto.ReaderCommand) dto.ReaderReply

// ControlClient sends control commands to the ingestor and waits for its
// reply.
type ControlClient struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewControlClient(nc *nats.Conn, timeout time.Duration) *ControlClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ControlClient{nc: nc, timeout: timeout}
}

// Send issues cmd and decodes the reply. A missing responder is reported as
// nats.ErrNoResponders.
func (c *ControlClient) Send(ctx context.Context, cmd dto.ReaderCommand) (dto.ReaderReply, error) {
	var reply dto.ReaderReply

	data, err := json.Marshal(cmd)
	if err != nil {
		return reply, fmt.Errorf("marshal command: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(reqCtx, ControlSubject, data)
	if err != nil {
		return reply, fmt.Errorf("request %s: %w", cmd.Action, err)
	}
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return reply, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// ServeControl subscribes handler to ControlSubject. Requests are answered in
// arrival order on the subscription's goroutine.
func ServeControl(ctx context.Context, nc *nats.Conn, handler ControlHandler) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(ControlSubject, func(msg *nats.Msg) {
		cmd, err := ParseCommand(msg.Data)
		var reply dto.ReaderReply
		if err != nil {
			slog.Error("parse command", "error", err)
			reply = dto.ReaderReply{Success: false, Message: err.Error()}
		} else {
			slog.Info("received command", "action", cmd.Action)
			reply = handler(ctx, cmd)
		}

		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			slog.Error("marshal reply", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error("respond to command", "action", cmd.Action, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", ControlSubject, err)
	}
	return sub, nil
}

// ParseCommand parses a NATS message into a ReaderCommand.
func ParseCommand(data []byte) (dto.ReaderCommand, error) {
	var cmd dto.ReaderCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("parse command: %w", err)
	}
	if cmd.Action == "" {
		return cmd, fmt.Errorf("parse command: missing action")
	}
	return cmd, nil
}
