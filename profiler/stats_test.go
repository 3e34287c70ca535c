package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDurationRecorderEmptySnapshot(t *testing.T) {
	r := newDurationRecorder()
	require.Equal(t, TimeStatistics{}, r.snapshot())
}

func TestDurationRecorderSnapshot(t *testing.T) {
	r := newDurationRecorder()
	r.record(time.Millisecond)
	r.record(2 * time.Millisecond)
	r.record(3 * time.Millisecond)

	s := r.snapshot()
	require.EqualValues(t, 3, s.Count)
	require.LessOrEqual(t, s.Min, s.Mean)
	require.LessOrEqual(t, s.Mean, s.Max)
	require.InDelta(t, float64(time.Millisecond), float64(s.Min), float64(50*time.Microsecond))
	require.InDelta(t, float64(3*time.Millisecond), float64(s.Max), float64(50*time.Microsecond))
	require.Positive(t, s.P50)
	require.LessOrEqual(t, s.P50, s.P99)
}

func TestDurationRecorderClampsOutOfRangeValues(t *testing.T) {
	r := newDurationRecorder()
	r.record(-time.Second)
	r.record(time.Minute)

	s := r.snapshot()
	require.EqualValues(t, 2, s.Count)
	require.Equal(t, time.Duration(minRecordableNanos), s.Min)
	require.InEpsilon(t, float64(maxRecordableNanos), float64(s.Max), 0.01)
}
