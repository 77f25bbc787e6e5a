// Package ipc carries control commands between the wayrange CLI and a
// running watch daemon over a unix socket. Frames are length-prefixed
// JSON: a uint32 big-endian byte count followed by one encoded message.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/wayrange/internal/display"
)

// Request operations the daemon understands.
const (
	OpStatus  = "status"
	OpReapply = "reapply"
	OpSwitch  = "switch"
	OpStop    = "stop"
)

// maxFrameSize caps a single frame at 1 MiB. Nothing the protocol carries
// comes near this; a larger length prefix means a confused peer.
const maxFrameSize = 1 << 20

// Request is one command sent to the daemon.
type Request struct {
	Op      string `json:"op"`
	Profile string `json:"profile,omitempty"` // for "switch"
}

// Response is the daemon's answer to one request.
type Response struct {
	OK     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// Status describes the daemon's view of the session.
type Status struct {
	ActiveProfile string          `json:"active_profile,omitempty"`
	AutoApply     bool            `json:"auto_apply"`
	LastApply     *ApplyReport    `json:"last_apply,omitempty"`
	Outputs       []OutputSummary `json:"outputs"`
}

// ApplyReport records the outcome of the daemon's most recent apply.
type ApplyReport struct {
	Profile string    `json:"profile"`
	When    time.Time `json:"when"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
}

// OutputSummary is one output line of the status listing.
type OutputSummary struct {
	Name     string  `json:"name"`
	Enabled  bool    `json:"enabled"`
	Primary  bool    `json:"primary"`
	Position string  `json:"position"`
	Mode     string  `json:"mode"`
	Scale    float64 `json:"scale"`
}

// Summarize flattens a snapshot into the status listing.
func Summarize(snap *display.Snapshot) []OutputSummary {
	if snap == nil {
		return nil
	}
	outs := make([]OutputSummary, 0, len(snap.Displays))
	for _, d := range snap.Displays {
		outs = append(outs, OutputSummary{
			Name:     d.Name,
			Enabled:  d.Enabled,
			Primary:  d.Primary,
			Position: fmt.Sprintf("%d,%d", d.Position.X, d.Position.Y),
			Mode:     d.Mode.String(),
			Scale:    d.Scale,
		})
	}
	return outs
}

// SocketPath returns the control socket location: the session runtime
// directory when the environment provides one, a per-uid /tmp name
// otherwise.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "wayrange.sock")
	}
	return filepath.Join("/tmp", fmt.Sprintf("wayrange-%d.sock", os.Getuid()))
}

// writeFrame encodes v and writes it as one length-prefixed frame.
func writeFrame(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("message too large: %d bytes", len(data))
	}

	length := uint32(len(data))
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame and decodes it into v.
func readFrame(r io.Reader, v interface{}) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxFrameSize {
		return fmt.Errorf("message too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("failed to read message data: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
