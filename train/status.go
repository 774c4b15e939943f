package train

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Status tracks training progress and loss history.
type Status struct {
	mu          sync.Mutex
	maxIters    int
	batchesDone int
	losses      map[string][]float64
	started     time.Time
	now         func() time.Time
}

// NewStatus creates status for maxIters batches.
func NewStatus(maxIters int) *Status {
	return &Status{
		maxIters: maxIters,
		losses:   make(map[string][]float64),
		started:  time.Now(),
		now:      time.Now,
	}
}

// Update appends one value per key and counts a batch.
func (s *Status) Update(values map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.losses[k] = append(s.losses[k], v)
	}
	s.batchesDone++
}

// BatchesDone returns number of processed batches.
func (s *Status) BatchesDone() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchesDone
}

// MaxIters returns planned number of batches.
func (s *Status) MaxIters() int {
	return s.maxIters
}

// Keys returns tracked loss names sorted.
func (s *Status) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.losses))
	for k := range s.losses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// History returns a copy of values recorded for key.
func (s *Status) History(key string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.losses[key]...)
}

// Last returns the latest value of every key.
func (s *Status) Last() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := make(map[string]float64, len(s.losses))
	for k, v := range s.losses {
		if len(v) > 0 {
			last[k] = v[len(v)-1]
		}
	}
	return last
}

// ETA estimates remaining time from the average batch duration.
func (s *Status) ETA() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchesDone == 0 || s.batchesDone >= s.maxIters {
		return 0
	}
	perBatch := s.now().Sub(s.started) / time.Duration(s.batchesDone)
	return perBatch * time.Duration(s.maxIters-s.batchesDone)
}

// String is a one line progress summary.
func (s *Status) String() string {
	done := s.BatchesDone()
	return fmt.Sprintf("%d/%d batches, eta %s", done, s.maxIters, s.ETA().Round(time.Second))
}

// Plot draws loss curves into an image file. Format follows extension (png, svg, pdf...).
func (s *Status) Plot(path string) error {
	keys := s.Keys()
	if len(keys) == 0 {
		return fmt.Errorf("nothing to plot")
	}
	p := plot.New()
	p.Title.Text = "Loss"
	p.X.Label.Text = "batches"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())
	for i, key := range keys {
		history := s.History(key)
		xys := make(plotter.XYs, len(history))
		for j, v := range history {
			xys[j].X = float64(j + 1)
			xys[j].Y = v
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "Can't draw '%s' line", key)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(key, line)
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "Can't save loss plot")
	}
	return nil
}
