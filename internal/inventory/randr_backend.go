package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/wayrange/internal/display"
	"github.com/bnema/wayrange/internal/logger"
)

// randrPollInterval is how often the fallback backend re-reads output
// state while watching. The CLI offers no event stream.
const randrPollInterval = 2 * time.Second

// randrBackend shells out to the wlr-randr tool. It works on any wlroots
// compositor without protocol bindings, at the cost of coarser apply
// semantics: staleness is checked against a state fingerprint instead of a
// compositor serial, and the whole change goes out as one invocation.
type randrBackend struct {
	tool string
	poll time.Duration
}

func newRandrBackend(_ context.Context, opts Options) (Backend, error) {
	tool := opts.WlrRandrPath
	if tool == "" {
		tool = "wlr-randr"
	}
	path, err := exec.LookPath(tool)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH", tool)
	}

	poll := opts.PollInterval
	if poll <= 0 {
		poll = randrPollInterval
	}
	return &randrBackend{tool: path, poll: poll}, nil
}

func (r *randrBackend) Name() string { return "wlr-randr" }

// randrOutput mirrors one entry of `wlr-randr --json`.
type randrOutput struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Serial       string  `json:"serial"`
	Enabled      bool    `json:"enabled"`
	Scale        float64 `json:"scale"`
	Transform    string  `json:"transform"`
	PhysicalSize struct {
		Width  int32 `json:"width"`
		Height int32 `json:"height"`
	} `json:"physical_size"`
	Position struct {
		X int32 `json:"x"`
		Y int32 `json:"y"`
	} `json:"position"`
	Modes []struct {
		Width     int32   `json:"width"`
		Height    int32   `json:"height"`
		Refresh   float64 `json:"refresh"`
		Preferred bool    `json:"preferred"`
		Current   bool    `json:"current"`
	} `json:"modes"`
}

func (r *randrBackend) Enumerate(ctx context.Context) (*display.Snapshot, error) {
	cmd := exec.CommandContext(ctx, r.tool, "--json")
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("wlr-randr failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("failed to run wlr-randr: %w", err)
	}

	displays, err := parseRandrJSON(out)
	if err != nil {
		return nil, err
	}

	return &display.Snapshot{
		Serial:   fingerprint(displays),
		Taken:    time.Now(),
		Displays: displays,
	}, nil
}

func parseRandrJSON(out []byte) ([]display.DisplayInfo, error) {
	var outputs []randrOutput
	if err := json.Unmarshal(out, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse wlr-randr output: %w", err)
	}

	displays := make([]display.DisplayInfo, 0, len(outputs))
	for i, o := range outputs {
		info := display.DisplayInfo{
			Handle:      display.Handle(i),
			Name:        o.Name,
			Description: o.Description,
			Make:        o.Make,
			Model:       o.Model,
			Serial:      o.Serial,
			Enabled:     o.Enabled,
			Scale:       o.Scale,
			Transform:   parseTransform(o.Transform),
			MmWidth:     o.PhysicalSize.Width,
			MmHeight:    o.PhysicalSize.Height,
		}
		for _, m := range o.Modes {
			mode := display.Mode{
				Width:      m.Width,
				Height:     m.Height,
				RefreshMHz: refreshToMHz(m.Refresh),
				Preferred:  m.Preferred,
			}
			info.Modes = append(info.Modes, mode)
			if m.Current && o.Enabled {
				info.Mode = mode
			}
		}
		if o.Enabled {
			info.Position = display.Position{X: o.Position.X, Y: o.Position.Y}
		}
		displays = append(displays, info)
	}
	return displays, nil
}

// Apply re-reads the live state first: a fingerprint that no longer
// matches the presented serial means the arrangement was computed against
// a stale snapshot.
func (r *randrBackend) Apply(ctx context.Context, serial uint64, configs []display.DeviceConfig) error {
	snap, err := r.Enumerate(ctx)
	if err != nil {
		return err
	}
	if snap.Serial != serial {
		return fmt.Errorf("%w: output state changed since the snapshot", ErrOutdated)
	}

	args := buildRandrArgs(configs)
	logger.Debugf("Running wlr-randr %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, r.tool, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return nil
}

// buildRandrArgs lays every device change into a single invocation, the
// closest the CLI comes to an atomic commit.
func buildRandrArgs(configs []display.DeviceConfig) []string {
	var args []string
	for _, cfg := range configs {
		args = append(args, "--output", cfg.Name)
		if !cfg.Enable {
			args = append(args, "--off")
			continue
		}
		args = append(args,
			"--on",
			"--mode", fmt.Sprintf("%dx%d@%.3fHz", cfg.Mode.Width, cfg.Mode.Height, cfg.Mode.RefreshHz()),
			"--pos", fmt.Sprintf("%d,%d", cfg.Position.X, cfg.Position.Y),
		)
		if cfg.Scale > 0 {
			args = append(args, "--scale", strconv.FormatFloat(cfg.Scale, 'g', -1, 64))
		}
	}
	return args
}

func (r *randrBackend) Watch(ctx context.Context, fn func()) error {
	last, err := r.Enumerate(ctx)
	if err != nil {
		return err
	}

	go func() {
		lastSerial := last.Serial
		ticker := time.NewTicker(r.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			snap, err := r.Enumerate(ctx)
			if err != nil {
				logger.Debugf("wlr-randr poll failed: %v", err)
				continue
			}
			if snap.Serial != lastSerial {
				lastSerial = snap.Serial
				fn()
			}
		}
	}()
	return nil
}

func (r *randrBackend) Close() error { return nil }

// refreshToMHz converts the tool's Hz float to millihertz.
func refreshToMHz(hz float64) int32 {
	return int32(math.Round(hz * 1000))
}

var transformNames = map[string]int32{
	"normal":      0,
	"90":          1,
	"180":         2,
	"270":         3,
	"flipped":     4,
	"flipped-90":  5,
	"flipped-180": 6,
	"flipped-270": 7,
}

func parseTransform(s string) int32 {
	if t, ok := transformNames[s]; ok {
		return t
	}
	return 0
}

// fingerprint hashes the observable output state into a serial. Any change
// the tool can report changes the fingerprint.
func fingerprint(displays []display.DisplayInfo) uint64 {
	names := make([]string, 0, len(displays))
	byName := make(map[string]*display.DisplayInfo, len(displays))
	for i := range displays {
		d := &displays[i]
		names = append(names, d.Name)
		byName[d.Name] = d
	}
	sort.Strings(names)

	h := fnv.New64a()
	for _, name := range names {
		d := byName[name]
		fmt.Fprintf(h, "%s|%s|%s|%s|%t|%d,%d|%s|%g|%d|%d\n",
			d.Name, d.Make, d.Model, d.Serial,
			d.Enabled, d.Position.X, d.Position.Y,
			d.Mode, d.Scale, d.Transform, len(d.Modes))
	}
	return h.Sum64()
}
