package profiler

import (
	"sync"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/rzrymiak/graal/internal/safe"
)

// Recorded values are clamped into the histogram's trackable range.
const (
	minRecordableNanos = int64(1)
	maxRecordableNanos = int64(10 * time.Second)
)

// TimeStatistics summarizes a set of recorded durations. It is an immutable
// snapshot; the zero value means nothing was recorded.
type TimeStatistics struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P99   time.Duration
}

// durationRecorder accumulates durations into an HDR histogram. One recorder
// exists per statistic per collection session.
type durationRecorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

func newDurationRecorder() *durationRecorder {
	return &durationRecorder{
		hist: hdrhistogram.New(minRecordableNanos, maxRecordableNanos, 3),
	}
}

func (r *durationRecorder) record(d time.Duration) {
	v, _ := safe.ClampInt64(d.Nanoseconds(), minRecordableNanos, maxRecordableNanos)
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.hist.RecordValue(v)
}

// snapshot returns an immutable summary of everything recorded so far.
func (r *durationRecorder) snapshot() TimeStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := r.hist.TotalCount()
	if count == 0 {
		return TimeStatistics{}
	}
	return TimeStatistics{
		Count: count,
		Min:   time.Duration(r.hist.Min()),
		Max:   time.Duration(r.hist.Max()),
		Mean:  time.Duration(r.hist.Mean()),
		P50:   time.Duration(r.hist.ValueAtQuantile(50)),
		P99:   time.Duration(r.hist.ValueAtQuantile(99)),
	}
}
