package navlog

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/meridian-robotics/navcore/internal/belief"
	"github.com/meridian-robotics/navcore/internal/config"
	"github.com/meridian-robotics/navcore/internal/pipeline"
	"github.com/meridian-robotics/navcore/internal/units"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	records := []Record{
		Control(0.00, 0.5, 0.0),
		Position(0.02, 0.01, 0.0),
		Heading(0.03, 0.01),
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	r := NewReader(&buf)
	for i, want := range records {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next record %d failed: %v", i, err)
		}
		if got.Kind != want.Kind || got.T != want.T {
			t.Errorf("record %d: got kind=%s t=%v, want kind=%s t=%v",
				i, got.Kind, got.T, want.Kind, want.T)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after last record, got %v", err)
	}
}

func TestReaderSkipsBlankLines(t *testing.T) {
	input := `{"t":0,"kind":"control","linear_mps":0.1,"angular_rps":0}

{"t":0.01,"kind":"heading","yaw_rad":0.2}
`
	r := NewReader(strings.NewReader(input))

	first, err := r.Next()
	if err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	if first.Kind != KindControl {
		t.Errorf("expected control, got %s", first.Kind)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	if second.Kind != KindHeading || *second.Yaw != 0.2 {
		t.Errorf("expected heading 0.2, got %+v", second)
	}
}

func TestReaderRejectsMalformedRecords(t *testing.T) {
	cases := []string{
		`not json`,
		`{"t":0,"kind":"teleport","x_m":1}`,
		`{"t":0,"kind":"position","x_m":1}`,
		`{"t":0,"kind":"control","linear_mps":0.1}`,
	}
	for _, input := range cases {
		r := NewReader(strings.NewReader(input))
		if _, err := r.Next(); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestWriterRejectsInvalid(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	if err := w.Write(Record{T: 0, Kind: KindPosition}); err == nil {
		t.Error("expected error writing position record without coordinates")
	}
}

func startedPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(config.DefaultTuningConfig())
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}
	if err := p.Start(belief.Pose{}, [3]float64{0.1, 0.1, 0.05}, units.Seconds(0)); err != nil {
		t.Fatalf("failed to start pipeline: %v", err)
	}
	return p
}

func TestReplayFeedsPipeline(t *testing.T) {
	p := startedPipeline(t)
	period := p.Config().GetControlPeriodSec()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	// Constant forward drive with position fixes every other period.
	for i := 0; i < 20; i++ {
		ts := float64(i) * period
		if err := w.Write(Control(ts, 0.5, 0)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if i%2 == 1 {
			if err := w.Write(Position(ts, 0.5*ts, 0)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
		}
	}

	stats, err := Replay(p, &buf)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if stats.Records != 30 {
		t.Errorf("expected 30 records, got %d", stats.Records)
	}
	if stats.Ticks == 0 {
		t.Error("expected control ticks during replay")
	}

	st := p.Status()
	if st.Counters.PositionAccepted == 0 {
		t.Error("expected accepted position measurements")
	}
	if st.Belief.Pose.X.Float() <= 0 {
		t.Errorf("expected forward progress, got x=%f", st.Belief.Pose.X.Float())
	}
}

func TestReplayEmptyLog(t *testing.T) {
	p := startedPipeline(t)
	if _, err := Replay(p, strings.NewReader("")); err == nil {
		t.Error("expected error replaying empty log")
	}
}
