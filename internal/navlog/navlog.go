// Package navlog reads and writes JSONL run logs: one timestamped record
// per line, either a commanded control input or a sensor measurement.
// Logs come from real runs or from gen-navlog and are replayed through the
// pipeline for offline tuning.
package navlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/meridian-robotics/navcore/internal/belief"
	"github.com/meridian-robotics/navcore/internal/units"
)

const (
	KindControl  = "control"
	KindPosition = "position"
	KindHeading  = "heading"
)

// Record is one log line. Kind selects which fields are meaningful.
type Record struct {
	T    float64 `json:"t"`
	Kind string  `json:"kind"`

	Linear  *float64 `json:"linear_mps,omitempty"`
	Angular *float64 `json:"angular_rps,omitempty"`

	X   *float64 `json:"x_m,omitempty"`
	Y   *float64 `json:"y_m,omitempty"`
	Yaw *float64 `json:"yaw_rad,omitempty"`
}

// Validate checks that the record carries the fields its kind requires.
func (r Record) Validate() error {
	switch r.Kind {
	case KindControl:
		if r.Linear == nil || r.Angular == nil {
			return fmt.Errorf("control record at t=%v missing linear_mps or angular_rps", r.T)
		}
	case KindPosition:
		if r.X == nil || r.Y == nil {
			return fmt.Errorf("position record at t=%v missing x_m or y_m", r.T)
		}
	case KindHeading:
		if r.Yaw == nil {
			return fmt.Errorf("heading record at t=%v missing yaw_rad", r.T)
		}
	default:
		return fmt.Errorf("unknown record kind %q at t=%v", r.Kind, r.T)
	}
	return nil
}

// Control builds a control record.
func Control(t, linear, angular float64) Record {
	return Record{T: t, Kind: KindControl, Linear: &linear, Angular: &angular}
}

// Position builds a position measurement record.
func Position(t, x, y float64) Record {
	return Record{T: t, Kind: KindPosition, X: &x, Y: &y}
}

// Heading builds a heading measurement record.
func Heading(t, yaw float64) Record {
	return Record{T: t, Kind: KindHeading, Yaw: &yaw}
}

// Writer emits records as JSONL.
type Writer struct {
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Write(r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return w.enc.Encode(r)
}

// Reader yields records one line at a time. Blank lines are skipped so logs
// survive manual editing.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next record, or io.EOF when the log is exhausted.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return Record{}, fmt.Errorf("line %d: failed to unmarshal record: %w", r.line, err)
		}
		if err := rec.Validate(); err != nil {
			return Record{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

// ControlInput converts a control record to the typed command.
func (r Record) ControlInput() belief.ControlInput {
	return belief.ControlInput{
		Linear:  units.MetersPerSecond(*r.Linear),
		Angular: units.RadiansPerSecond(*r.Angular),
	}
}

// PositionMeasurement converts a position record to the typed measurement.
func (r Record) PositionMeasurement() belief.PositionMeasurement {
	return belief.PositionMeasurement{
		X:         units.Meters(*r.X),
		Y:         units.Meters(*r.Y),
		Timestamp: units.Seconds(r.T),
	}
}

// HeadingMeasurement converts a heading record to the typed measurement.
func (r Record) HeadingMeasurement() belief.HeadingMeasurement {
	return belief.HeadingMeasurement{
		Yaw:       units.Radians(*r.Yaw),
		Timestamp: units.Seconds(r.T),
	}
}
