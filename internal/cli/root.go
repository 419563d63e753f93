// Package cli implements attendctl, the operator command line for the
// attendance ingestor.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/pkg/dto"
)

// Sender delivers one control command to the ingestor.
type Sender interface {
	Send(ctx context.Context, cmd dto.ReaderCommand) (dto.ReaderReply, error)
}

// Dialer opens a Sender for the resolved options. The returned func releases
// it.
type Dialer func(opts *RootOptions) (Sender, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	NATSURL    string
	Timeout    time.Duration
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the attendctl root command. dial is nil in
// production, which connects to NATS.
func NewRootCommand(dial Dialer) *cobra.Command {
	opts := &RootOptions{}
	if dial == nil {
		dial = DialNATS
	}

	cmd := &cobra.Command{
		Use:   "attendctl",
		Short: "Control the RFID attendance ingestor",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file used to resolve the NATS URL")
	cmd.PersistentFlags().StringVar(&opts.NATSURL, "nats", "", "NATS URL (overrides --config)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "reply timeout")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewReaderCommand(opts, dial))
	cmd.AddCommand(newActionCommand(opts, dial, "clear-today", "Archive and clear today's attendance", dto.ActionClearToday))
	cmd.AddCommand(newActionCommand(opts, dial, "reload-policy", "Reload the attendance policy from the database", dto.ActionReloadPolicy))
	cmd.AddCommand(NewScanCommand(opts, dial))

	return cmd
}

// DialNATS connects to the NATS URL from --nats, or from the config file.
func DialNATS(opts *RootOptions) (Sender, func(), error) {
	url := opts.NATSURL
	if url == "" && opts.ConfigPath != "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		url = cfg.NATS.URL
	}
	if url == "" {
		url = "nats://127.0.0.1:4222"
	}
	nc, err := queue.Connect(url, "attendctl")
	if err != nil {
		return nil, nil, err
	}
	return queue.NewControlClient(nc, opts.Timeout), nc.Close, nil
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
