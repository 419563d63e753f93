package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/pkg/dto"
)

// NewReaderCommand groups start, stop and status.
func NewReaderCommand(opts *RootOptions, dial Dialer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reader",
		Short: "Start, stop or inspect the tag reader",
	}
	cmd.AddCommand(newActionCommand(opts, dial, "start", "Start accepting scans", dto.ActionStart))
	cmd.AddCommand(newActionCommand(opts, dial, "stop", "Stop accepting scans", dto.ActionStop))
	cmd.AddCommand(newActionCommand(opts, dial, "status", "Show whether the reader is running", dto.ActionStatus))
	return cmd
}

// NewScanCommand injects a tag read, as if the reader had reported it.
func NewScanCommand(opts *RootOptions, dial Dialer) *cobra.Command {
	var deviceID string
	cmd := &cobra.Command{
		Use:          "scan <rfid-uid>",
		Short:        "Inject a tag scan",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, dial, dto.ReaderCommand{Action: dto.ActionScan, RFIDUID: args[0], DeviceID: deviceID})
		},
	}
	cmd.Flags().StringVar(&deviceID, "device", "", "device id recorded on the scan (default: the ingestor's reader id)")
	return cmd
}

func newActionCommand(opts *RootOptions, dial Dialer, use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:          use,
		Short:        short,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, dial, dto.ReaderCommand{Action: action})
		},
	}
}

func run(cmd *cobra.Command, opts *RootOptions, dial Dialer, rc dto.ReaderCommand) error {
	sender, release, err := dial(opts)
	if err != nil {
		return err
	}
	defer release()

	reply, err := sender.Send(cmd.Context(), rc)
	if err != nil {
		return err
	}
	if err := printReply(cmd.OutOrStdout(), opts.Format, rc.Action, reply); err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("%s failed: %s", rc.Action, reply.Message)
	}
	return nil
}

func printReply(w io.Writer, format, action string, r dto.ReaderReply) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	if r.Message != "" {
		fmt.Fprintln(w, r.Message)
	}
	switch action {
	case dto.ActionStatus, dto.ActionStart, dto.ActionStop:
		state := "stopped"
		if r.Running {
			state = "running"
		}
		fmt.Fprintf(w, "reader: %s\n", state)
	case dto.ActionScan:
		if s := r.Scan; s != nil {
			fmt.Fprintf(w, "%s  %s  %s (%s)  %s\n", s.ScanTime, s.EventType, s.EmployeeName, s.EmployeeCode, s.Status)
		}
	}
	return nil
}
