package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/orderflow/internal/logstore"
)

// recordView is the JSON rendering of a stored record.
type recordView struct {
	Revision uint64          `json:"revision"`
	Position uint64          `json:"position"`
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Created  time.Time       `json:"created"`
}

func viewRecord(r logstore.RecordedEvent) recordView {
	v := recordView{
		Revision: r.Revision,
		Position: r.Position,
		ID:       r.ID,
		Type:     r.Type,
		Created:  r.Created,
	}
	if json.Valid(r.Data) {
		v.Data = r.Data
	}
	if json.Valid(r.Metadata) {
		v.Metadata = r.Metadata
	}
	return v
}

// NewStreamCommand creates the stream command.
func NewStreamCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <name>",
		Short: "Print the records of one stream",
		Long: `Print every record of a stream in revision order.

Exit codes:
  0 - Stream printed
  1 - Stream does not exist
  2 - Command error

Example:
  orderflow stream order-system:order:O1
  orderflow stream order-system:process-order:req-1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runStream(opts *RootOptions, name string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	records := []recordView{}
	for record, err := range st.ReadStream(cmd.Context(), name) {
		if errors.Is(err, logstore.ErrStreamNotFound) {
			return NewExitError(ExitFailure, fmt.Sprintf("stream %s not found", name))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stream", err)
		}
		records = append(records, viewRecord(record))
	}

	return opts.formatter(cmd).Result(records, "", func(w io.Writer) {
		for _, r := range records {
			fmt.Fprintf(w, "%s@%d\t%s\t%s\n", name, r.Revision, r.Type, r.Data)
		}
	})
}

// NewStreamsCommand creates the streams command.
func NewStreamsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "streams",
		Short:         "List streams in order of creation",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			streams, err := st.Streams(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list streams", err)
			}
			return rootOpts.formatter(cmd).Result(streams, "", func(w io.Writer) {
				if len(streams) == 0 {
					fmt.Fprintln(w, "No streams found in database.")
					return
				}
				for _, s := range streams {
					fmt.Fprintf(w, "%s\trevision %d\t%d record(s)\n", s.Name, s.Revision, s.Count)
				}
			})
		},
	}
}

// NewParkedCommand creates the parked command.
func NewParkedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parked <subscription>",
		Short: "List the messages a subscription parked",
		Long: `List the records a persistent subscription failed to handle, with the
reason each was parked. Parked records are never redelivered.

Example:
  orderflow parked process-order-subscriber`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			parked, err := st.ListParked(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list parked messages", err)
			}
			return rootOpts.formatter(cmd).Result(parked, "", func(w io.Writer) {
				if len(parked) == 0 {
					fmt.Fprintf(w, "No parked messages for %s.\n", args[0])
					return
				}
				for _, p := range parked {
					fmt.Fprintf(w, "%d\t%s@%s\t%s\t%s\n", p.Position, p.Type, p.StreamID, p.ParkedAt.Format(time.RFC3339), p.Reason)
				}
			})
		},
	}
	return cmd
}
