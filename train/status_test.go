package train

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	s := NewStatus(4)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.started = start
	s.now = func() time.Time { return start.Add(10 * time.Second) }
	require.Equal(t, time.Duration(0), s.ETA())

	s.Update(map[string]float64{"D": 1.5, "G": 0.5})
	require.Equal(t, 1, s.BatchesDone())
	require.Equal(t, 30*time.Second, s.ETA())
	s.Update(map[string]float64{"D": 1.0, "G": 0.7})
	require.Equal(t, 10*time.Second, s.ETA())

	require.Equal(t, []string{"D", "G"}, s.Keys())
	require.Equal(t, []float64{1.5, 1.0}, s.History("D"))
	require.Equal(t, map[string]float64{"D": 1.0, "G": 0.7}, s.Last())
	require.Equal(t, "2/4 batches, eta 10s", s.String())
}

func TestStatusPlot(t *testing.T) {
	s := NewStatus(3)
	require.Error(t, s.Plot(filepath.Join(t.TempDir(), "empty.png")))
	for i := 0; i < 3; i++ {
		s.Update(map[string]float64{"D": float64(i), "G": float64(3 - i)})
	}
	path := filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, s.Plot(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.True(t, info.Size() > 0)
}
