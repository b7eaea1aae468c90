package mobility

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/cxd309/junction-walk/internal/geo"
	"github.com/cxd309/junction-walk/internal/graph"
	"github.com/cxd309/junction-walk/internal/kinematics"
	"github.com/cxd309/junction-walk/internal/ledger"
)

// Config is the per-walker parameter set.
type Config struct {
	// TraceFile identifies the trace in the Source.
	TraceFile string
	// Reference, when set, projects the graph to local metres around it.
	// When nil the walker moves in the raw (lon, lat) plane.
	Reference *geo.Reference
	// Model converts segment lengths into travel times.
	Model kinematics.MotionModel
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) { w.logger = l }
}

// State is a snapshot of a walker.
type State struct {
	Position   orb.Point     `json:"position"`
	Current    int           `json:"current"`
	Next       int           `json:"next"`
	Stationary bool          `json:"stationary"`
	NextChange time.Duration `json:"next_change"`
}

// Walker is the per-agent movement state machine. It moves from its current
// junction toward nextIdx, arrives exactly at nextChange, then picks a new
// target. A walker at a junction with no usable neighbors becomes stationary
// for good.
//
// A Walker is not safe for concurrent use.
type Walker struct {
	cfg    Config
	src    Source
	rng    IntUniform
	logger *slog.Logger

	graph  *graph.Graph
	ledger *ledger.Ledger

	currentIdx     int
	nextIdx        int
	lastPosition   orb.Point
	targetPosition orb.Point
	velocity       orb.Point // plane units per second
	stationary     bool
	nextChange     time.Duration
	lastUpdate     time.Duration
	initialized    bool
}

var _ Mobility = (*Walker)(nil)

// NewWalker returns an uninitialized walker reading graphs from src.
func NewWalker(src Source, cfg Config, rng IntUniform, opts ...Option) (*Walker, error) {
	if cfg.TraceFile == "" {
		return nil, fmt.Errorf("walker: trace file is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("walker: kinematics model is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("walker: random source is required")
	}
	w := &Walker{
		cfg:        cfg,
		src:        src,
		rng:        rng,
		logger:     slog.Default(),
		nextChange: NoChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// MaxSpeed returns the model's maximum speed.
func (w *Walker) MaxSpeed() float64 { return w.cfg.Model.VMax() }

// Initialize implements Mobility.
func (w *Walker) Initialize(ctx context.Context, now time.Duration) error {
	g, err := w.src.GetFile(ctx, w.cfg.TraceFile)
	if err != nil {
		return fmt.Errorf("loading trace: %w", err)
	}
	l, err := w.src.Ledger(w.cfg.TraceFile)
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}
	if err := w.ensureProjection(l); err != nil {
		return err
	}
	if g.Len() == 0 {
		return fmt.Errorf("trace %q: %w", w.cfg.TraceFile, ErrEmptyGraph)
	}

	w.graph = g
	w.ledger = l
	w.currentIdx = 0
	w.nextIdx = 0
	w.lastPosition = g.Position(0)
	if _, err := l.Visit(0); err != nil {
		return err
	}
	w.lastUpdate = now
	w.setTarget(now)
	w.initialized = true

	w.logger.Debug("walker initialized",
		"trace_file", w.cfg.TraceFile,
		"next", w.nextIdx,
		"stationary", w.stationary,
		"next_change", w.nextChange,
	)
	return nil
}

// ensureProjection projects the shared graph the first time a walker with a
// reference starts on it, and rejects settings that disagree with it.
func (w *Walker) ensureProjection(l *ledger.Ledger) error {
	id := w.cfg.TraceFile
	cur, projected := w.src.Reference(id)
	switch {
	case w.cfg.Reference == nil && projected:
		return fmt.Errorf("trace %q projected around %v but walker has no reference: %w", id, cur, ErrReferenceConflict)
	case w.cfg.Reference == nil:
		return nil
	case projected && cur != *w.cfg.Reference:
		return fmt.Errorf("trace %q projected around %v, walker wants %v: %w", id, cur, *w.cfg.Reference, ErrReferenceConflict)
	case projected:
		return nil
	case l.Total() > 0:
		return fmt.Errorf("trace %q: %w", id, ErrProjectAfterUse)
	}
	w.src.ConvertGeoToLocal(id, w.cfg.Reference.Lat, w.cfg.Reference.Lon)
	return nil
}

// Advance implements Mobility.
//
// If now is past the scheduled arrival the walker snaps to the target and
// treats the arrival time as the current time, so one call handles at most
// one arrival. At the arrival instant it commits the junction, records the
// visit and starts the next segment. Between arrivals it interpolates
// linearly.
func (w *Walker) Advance(now time.Duration) (orb.Point, error) {
	if !w.initialized {
		return orb.Point{}, ErrNotInitialized
	}
	if now < w.lastUpdate {
		return w.lastPosition, fmt.Errorf("advance to %v before last update %v: %w", now, w.lastUpdate, ErrInconsistentTime)
	}
	if w.stationary {
		w.lastUpdate = now
		return w.lastPosition, nil
	}

	scheduled := w.nextChange != NoChange
	if scheduled && now > w.nextChange {
		w.lastPosition = w.targetPosition
		now = w.nextChange
	}

	if scheduled && now == w.nextChange {
		if err := w.arrive(now); err != nil {
			return w.lastPosition, err
		}
	} else if now > w.lastUpdate {
		if scheduled && now >= w.nextChange {
			return w.lastPosition, fmt.Errorf("interpolating at %v with arrival at %v: %w", now, w.nextChange, ErrInconsistentTime)
		}
		dt := (now - w.lastUpdate).Seconds()
		w.lastPosition = orb.Point{
			w.lastPosition[0] + w.velocity[0]*dt,
			w.lastPosition[1] + w.velocity[1]*dt,
		}
	}
	w.lastUpdate = now
	return w.lastPosition, nil
}

// arrive commits the pending junction at time now and starts the next
// segment from its canonical coordinates.
func (w *Walker) arrive(now time.Duration) error {
	w.currentIdx = w.nextIdx
	w.lastPosition = w.graph.Position(w.currentIdx)
	if _, err := w.ledger.Visit(w.currentIdx); err != nil {
		return err
	}
	w.setTarget(now)
	if w.stationary {
		w.logger.Info("walker reached dead end", "trace_file", w.cfg.TraceFile, "junction", w.currentIdx)
	}
	return nil
}

// setTarget chooses the next junction from the current one and schedules the
// arrival. With no usable neighbors the walker stops.
func (w *Walker) setTarget(now time.Duration) {
	next, ok := SelectNext(w.graph.Neighbors(w.currentIdx), w.ledger, w.rng)
	if !ok {
		w.stationary = true
		w.nextChange = NoChange
		w.targetPosition = w.lastPosition
		w.velocity = orb.Point{}
		return
	}

	w.nextIdx = next
	w.targetPosition = w.graph.Position(next)
	w.nextChange = now + w.cfg.Model.TravelTime(planar.Distance(w.lastPosition, w.targetPosition))
	w.stationary = false

	w.velocity = orb.Point{}
	if span := (w.nextChange - now).Seconds(); span > 0 {
		w.velocity = orb.Point{
			(w.targetPosition[0] - w.lastPosition[0]) / span,
			(w.targetPosition[1] - w.lastPosition[1]) / span,
		}
	}
}

// Position returns the last computed position.
func (w *Walker) Position() orb.Point { return w.lastPosition }

// State returns a snapshot of the walker.
func (w *Walker) State() State {
	return State{
		Position:   w.lastPosition,
		Current:    w.currentIdx,
		Next:       w.nextIdx,
		Stationary: w.stationary,
		NextChange: w.nextChange,
	}
}

// Velocity returns the velocity of the current segment, in plane units per
// second.
func (w *Walker) Velocity() orb.Point { return w.velocity }
