// Package recommender ranks tracked items by their predicted price change.
package recommender

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/services/scheduler"
	"go.uber.org/zap"
)

// ErrRunInProgress another run has not finished yet.
var ErrRunInProgress = errors.New("recommendation run already in progress")

// Predictor produces predictions anchored at a fresh price.
type Predictor interface {
	Predict(ctx context.Context, item domain.Item, horizon int) (domain.Result[domain.Prediction], error)
}

// SnapshotStore persists recommendation snapshots.
type SnapshotStore interface {
	SaveRecommendations(ctx context.Context, snapshot domain.RecommendationSnapshot) error
	LastRecommendations(ctx context.Context) (domain.RecommendationSnapshot, error)
}

// Phase stage of the engine lifecycle.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseDone    Phase = "done"
)

// State observable engine state.
type State struct {
	Phase Phase `json:"phase"`
	// ProgressPct and ETASeconds are set while running.
	ProgressPct float64 `json:"progress_pct"`
	ETASeconds  float64 `json:"eta_seconds"`
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
	// Timestamp completion time of the last successful run.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Engine runs recommendation batches. Only one run may be active at a time.
type Engine struct {
	predictor Predictor
	store     SnapshotStore
	scheduler *scheduler.Scheduler
	l         *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   State
	last    *domain.RecommendationSnapshot
	subs    map[int]func(scheduler.Progress)
	nextSub int
}

// NewEngine creates an idle engine.
func NewEngine(l *zap.Logger, predictor Predictor, store SnapshotStore, sched *scheduler.Scheduler) *Engine {
	return &Engine{
		predictor: predictor,
		store:     store,
		scheduler: sched,
		l:         l,
		now:       time.Now,
		state:     State{Phase: PhaseIdle},
		subs:      make(map[int]func(scheduler.Progress)),
	}
}

// Subscribe registers fn for per-item progress of every run. Call the returned func to unsubscribe.
func (e *Engine) Subscribe(fn func(scheduler.Progress)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run evaluates items and returns the ranked snapshot.
//
// Items whose anchor price or prediction is unavailable are left out. The snapshot is
// persisted to the snapshot store; a persist failure is logged only. An authentication
// failure aborts the run, restores the previous state and is returned.
func (e *Engine) Run(ctx context.Context, items []domain.Item, horizon int) (*domain.RecommendationSnapshot, error) {
	horizon, prior, err := e.claim(items, horizon)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, items, horizon, prior)
}

// Start claims the run slot and evaluates items in the background. It fails at once with
// ErrRunInProgress while another run is active. The run is detached from ctx cancellation.
func (e *Engine) Start(ctx context.Context, items []domain.Item, horizon int) error {
	horizon, prior, err := e.claim(items, horizon)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := e.execute(ctx, items, horizon, prior); err != nil {
			e.l.Error("recommendation run failed", zap.Error(err))
		}
	}()
	return nil
}

func (e *Engine) claim(items []domain.Item, horizon int) (int, State, error) {
	if horizon == 0 {
		horizon = domain.DefaultHorizon
	}
	if !domain.ValidHorizon(horizon) {
		return 0, State{}, errors.Wrapf(domain.ErrInvalidHorizon, "horizon %d", horizon)
	}

	prior, err := e.begin(len(items))
	if err != nil {
		return 0, State{}, err
	}
	return horizon, prior, nil
}

func (e *Engine) execute(ctx context.Context, items []domain.Item, horizon int, prior State) (*domain.RecommendationSnapshot, error) {
	records := make([]domain.RecommendationRecord, 0, len(items))
	batch := scheduler.Batch[domain.Item]{
		Items: items,
		Key:   domain.Item.Key,
		Work: func(ctx context.Context, item domain.Item) (scheduler.Outcome, error) {
			rec, outcome, err := e.evaluate(ctx, item, horizon)
			if err == nil && rec != nil {
				records = append(records, *rec)
			}
			return outcome, err
		},
	}

	if _, err := scheduler.RunAll(ctx, e.scheduler, batch, e.progress); err != nil {
		e.restore(prior)
		return nil, errors.Wrap(err, "recommendation run aborted")
	}

	snapshot := &domain.RecommendationSnapshot{
		ID:        uuid.NewString(),
		Horizon:   horizon,
		Digest:    BuildDigest(records),
		All:       records,
		Timestamp: e.now().UTC(),
	}

	if err := e.store.SaveRecommendations(context.WithoutCancel(ctx), *snapshot); err != nil {
		e.l.Error("failed to persist recommendations", zap.String("id", snapshot.ID), zap.Error(err))
	}

	e.finish(snapshot)
	e.l.Info("recommendation run finished",
		zap.String("id", snapshot.ID),
		zap.Int("items", len(items)),
		zap.Int("ranked", len(records)),
		zap.Int("gainers", len(snapshot.Digest.TopGainers)),
		zap.Int("losers", len(snapshot.Digest.TopLosers)))

	return snapshot, nil
}

// evaluate warms history, fetches a fresh anchor and the adjusted prediction of one item.
// A nil record means the item is excluded from the ranking.
func (e *Engine) evaluate(ctx context.Context, item domain.Item, horizon int) (*domain.RecommendationRecord, scheduler.Outcome, error) {
	// the anchor price always goes to the network
	outcome := scheduler.Outcome{Fetched: true}

	res, err := e.predictor.Predict(ctx, item, horizon)
	if err != nil {
		if errors.Is(err, domain.ErrPredictionUnavailable) {
			e.l.Debug("item excluded from ranking", zap.String("item", item.Key()), zap.Error(err))
			return nil, outcome, nil
		}
		return nil, outcome, err
	}

	prediction := res.Value
	outcome.Throttled = prediction.AnchorSource == domain.SourceFallback

	final, ok := prediction.Final()
	if !ok || !prediction.AnchorPrice.IsAvailable() {
		return nil, outcome, nil
	}

	current := prediction.AnchorPrice
	return &domain.RecommendationRecord{
		Item:           item,
		CurrentPrice:   current,
		PredictedPrice: domain.NewPrice(final.PredictedPrice, current.Currency),
		OverallChange:  OverallChange(current.Amount, final.PredictedPrice),
	}, outcome, nil
}

// LastSnapshot loads the last persisted snapshot, falling back to the last run of this process.
func (e *Engine) LastSnapshot(ctx context.Context) (*domain.RecommendationSnapshot, error) {
	snapshot, err := e.store.LastRecommendations(ctx)
	if err == nil {
		return &snapshot, nil
	}

	e.mu.Lock()
	last := e.last
	e.mu.Unlock()

	if last != nil {
		e.l.Warn("snapshot store unavailable, serving last local run", zap.Error(err))
		return last, nil
	}
	return nil, errors.Wrap(err, "load last recommendations")
}

func (e *Engine) begin(total int) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Phase == PhaseRunning {
		return State{}, ErrRunInProgress
	}
	prior := e.state
	e.state = State{
		Phase:      PhaseRunning,
		Total:      total,
		ETASeconds: (time.Duration(total) * e.scheduler.NominalDelay()).Seconds(),
	}
	return prior, nil
}

func (e *Engine) progress(p scheduler.Progress) {
	e.mu.Lock()
	e.state.ProgressPct = p.Percent()
	e.state.ETASeconds = p.ETASeconds
	e.state.Completed = p.Completed

	subs := make([]func(scheduler.Progress), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
}

func (e *Engine) restore(prior State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = prior
}

func (e *Engine) finish(snapshot *domain.RecommendationSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = State{
		Phase:       PhaseDone,
		ProgressPct: 100,
		Completed:   e.state.Total,
		Total:       e.state.Total,
		Timestamp:   snapshot.Timestamp,
	}
	e.last = snapshot
}
