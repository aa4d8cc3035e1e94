package telemetry

import (
	"time"

	"github.com/montanaflynn/stats"
)

// Summary describes tick execution times.
type Summary struct {
	Count int
	Mean  time.Duration
	P95   time.Duration
	Max   time.Duration
}

// Summarize computes timing statistics. An empty input yields the zero Summary.
func Summarize(durations []time.Duration) (Summary, error) {
	if len(durations) == 0 {
		return Summary{}, nil
	}
	data := make(stats.Float64Data, len(durations))
	for i, d := range durations {
		data[i] = float64(d)
	}
	mean, err := data.Mean()
	if err != nil {
		return Summary{}, err
	}
	p95, err := data.Percentile(95)
	if err != nil {
		return Summary{}, err
	}
	maxDur, err := data.Max()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Count: len(durations),
		Mean:  time.Duration(mean),
		P95:   time.Duration(p95),
		Max:   time.Duration(maxDur),
	}, nil
}
