package navlog

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/meridian-robotics/navcore/internal/pipeline"
	"github.com/meridian-robotics/navcore/internal/units"
)

// ReplayStats summarizes one replay pass.
type ReplayStats struct {
	Records  int
	Ticks    int
	Dropped  int
	LastTime float64
}

// Replay feeds a JSONL log through the pipeline, running a control tick at
// every multiple of the configured control period the log's timeline crosses.
// Measurements the pipeline rejects (stale, unbracketed) count as Dropped and
// do not abort the pass; malformed records do.
//
// The pipeline must already be started with a prior at or before the log's
// first timestamp.
func Replay(p *pipeline.Pipeline, r io.Reader) (ReplayStats, error) {
	var stats ReplayStats

	period := p.Config().GetControlPeriodSec()
	reader := NewReader(r)

	nextTick := math.Inf(-1)
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}

		// First record anchors the tick schedule: ticks land one period
		// after the earliest event, then every period thereafter.
		if math.IsInf(nextTick, -1) {
			nextTick = rec.T + period
		}
		for rec.T >= nextTick {
			if _, err := p.Tick(units.Seconds(nextTick)); err != nil {
				stats.Dropped++
			}
			stats.Ticks++
			nextTick += period
		}

		if err := dispatch(p, rec); err != nil {
			stats.Dropped++
		}
		stats.Records++
		stats.LastTime = rec.T
	}

	if stats.Records == 0 {
		return stats, fmt.Errorf("log contained no records")
	}
	return stats, nil
}

func dispatch(p *pipeline.Pipeline, rec Record) error {
	switch rec.Kind {
	case KindControl:
		return p.ObserveControl(rec.ControlInput(), units.Seconds(rec.T))
	case KindPosition:
		return p.ObservePosition(rec.PositionMeasurement())
	case KindHeading:
		return p.ObserveHeading(rec.HeadingMeasurement())
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}
