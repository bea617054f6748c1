// Command gen-navlog generates sample JSONL run logs for testing replay.
//
// It simulates a differential-drive robot on a weaving path: the true pose
// integrates the commanded inputs exactly, and the emitted position and
// heading measurements are the true values plus Gaussian noise. Replaying
// the output through the pipeline should converge near the true track.
package main

import (
	"flag"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/meridian-robotics/navcore/internal/navlog"
)

func main() {
	output := flag.String("o", "sample.navlog", "output path")
	duration := flag.Float64("duration", 30.0, "run length in seconds")
	period := flag.Float64("period", 0.01, "control period in seconds")
	posRate := flag.Float64("pos-rate", 5.0, "position fixes per second")
	yawRate := flag.Float64("yaw-rate", 2.0, "heading fixes per second")
	posNoise := flag.Float64("pos-noise", 0.03, "position noise stddev in meters")
	yawNoise := flag.Float64("yaw-noise", 0.02, "heading noise stddev in radians")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()

	rng := rand.New(rand.NewSource(*seed))
	w := navlog.NewWriter(f)

	// True state, integrated exactly from the commands.
	var x, y, yaw float64
	var records int

	nextPos := 1.0 / *posRate
	nextYaw := 1.0 / *yawRate

	for t := 0.0; t <= *duration; t += *period {
		// Weave: steady forward drive with a slow sinusoidal turn.
		linear := 0.4
		angular := 0.6 * math.Sin(2*math.Pi*t/10)

		if err := w.Write(navlog.Control(t, linear, angular)); err != nil {
			log.Fatalf("failed to write control: %v", err)
		}
		records++

		x += linear * math.Cos(yaw) * *period
		y += linear * math.Sin(yaw) * *period
		yaw += angular * *period

		if t >= nextPos {
			nextPos += 1.0 / *posRate
			err := w.Write(navlog.Position(t,
				x+rng.NormFloat64()**posNoise,
				y+rng.NormFloat64()**posNoise))
			if err != nil {
				log.Fatalf("failed to write position: %v", err)
			}
			records++
		}
		if t >= nextYaw {
			nextYaw += 1.0 / *yawRate
			if err := w.Write(navlog.Heading(t, yaw+rng.NormFloat64()**yawNoise)); err != nil {
				log.Fatalf("failed to write heading: %v", err)
			}
			records++
		}
	}

	log.Printf("✓ Created: %s (%d records, %.1fs)", *output, records, *duration)
}
