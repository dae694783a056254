// Package lifecycle owns the single chart instance bound to a drawable
// surface. The instance is created once, when a surface first becomes
// available, and from then on only receives new data.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"github.com/spencer-p/tidedash/pkg/metrics"
	"github.com/spencer-p/tidedash/pkg/timetricks"
)

// ErrLengthMismatch is returned by ApplyAligned when a dataset is not parallel
// to the axis.
var ErrLengthMismatch = errors.New("dataset length does not match axis")

// Surface is a drawable the manager may create an instance on. The manager
// never looks inside it, only compares it by identity, so implementations
// should be pointers.
type Surface interface {
	NewInstance(datasets []string) (Instance, error)
}

// Instance is a mutable chart. SetAxis and SetDataset stage data; Update
// redraws.
type Instance interface {
	SetAxis(axis []time.Time)
	SetDataset(name string, values []null.Float64)
	Update() error
}

// State of a Manager.
type State int

const (
	Unbound State = iota
	BoundEmpty
	BoundLive
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case BoundEmpty:
		return "bound-empty"
	case BoundLive:
		return "bound-live"
	default:
		return "invalid"
	}
}

// Manager drives one Instance through Unbound, BoundEmpty and BoundLive. It
// is not safe for concurrent use; callers drive it from one goroutine.
type Manager struct {
	log      *zap.Logger
	norm     *timetricks.Normalizer
	datasets []string

	state    State
	surface  Surface
	instance Instance
	created  int
}

// NewManager returns an Unbound manager whose instance will carry datasets,
// in that order.
func NewManager(log *zap.Logger, n *timetricks.Normalizer, datasets ...string) *Manager {
	return &Manager{
		log:      log,
		norm:     n,
		datasets: datasets,
	}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// Created counts instances created over the manager's life.
func (m *Manager) Created() int {
	return m.created
}

// EnsureInstance binds s and creates the instance if there is none yet. It is
// a no-op once live, so callers may invoke it on every render opportunity.
// On creation failure the manager stays bound and the next call retries.
func (m *Manager) EnsureInstance(s Surface) error {
	if s == nil {
		return nil
	}

	switch m.state {
	case Unbound:
		m.surface = s
		m.state = BoundEmpty
		m.log.Debug("chart surface bound")
	case BoundLive:
		if s != m.surface {
			m.log.Warn("ignoring second surface; chart already live on another")
		}
		return nil
	}

	if s != m.surface {
		m.log.Warn("ignoring second surface; chart bound to another")
		return nil
	}

	inst, err := s.NewInstance(m.datasets)
	if err != nil {
		return fmt.Errorf("failed to create chart instance: %w", err)
	}
	inst.SetAxis(nil)
	for _, name := range m.datasets {
		inst.SetDataset(name, nil)
	}

	m.instance = inst
	m.state = BoundLive
	m.created++
	metrics.ChartInstances.Inc()
	m.log.Info("chart instance created", zap.Strings("datasets", m.datasets))
	return nil
}

// ApplyAligned overwrites the instance's axis and every dataset, then
// redraws. Before an instance exists it does nothing. Datasets missing from
// data are cleared to absent; names the instance does not carry are ignored.
func (m *Manager) ApplyAligned(axis []timetricks.Key, data map[string][]null.Float64) error {
	if m.state != BoundLive {
		m.log.Debug("no chart instance yet; skipping update", zap.Stringer("state", m.state))
		return nil
	}

	for name, values := range data {
		if len(values) != len(axis) {
			return fmt.Errorf("%w: %q has %d values for %d keys", ErrLengthMismatch, name, len(values), len(axis))
		}
	}

	times := make([]time.Time, len(axis))
	for i, k := range axis {
		times[i] = m.norm.Time(k)
	}
	m.instance.SetAxis(times)

	for _, name := range m.datasets {
		values, ok := data[name]
		if !ok {
			values = make([]null.Float64, len(axis))
		}
		m.instance.SetDataset(name, values)
	}

	if err := m.instance.Update(); err != nil {
		return fmt.Errorf("failed to redraw chart: %w", err)
	}
	metrics.ChartRedraws.Inc()
	return nil
}

// Release forgets the surface and instance, for when the host destroys the
// surface. A later EnsureInstance binds afresh.
func (m *Manager) Release() {
	if m.state == Unbound {
		return
	}
	m.surface = nil
	m.instance = nil
	m.state = Unbound
	m.log.Info("chart surface released")
}
