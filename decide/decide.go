// Package decide turns a retrieval into a course of action: reuse a known
// procedure, adapt a close match, combine partial matches, search outside, or
// start from nothing. Outcome reports feed back into the emotional weight of
// the memories that drove the decision.
package decide

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neurabase/brain-go-sdk/brain"
	"github.com/neurabase/brain-go-sdk/query"
)

// Decision is the recommended course of action.
type Decision string

const (
	MemoryReuse    Decision = "memory_reuse"    // a proven procedure applies directly
	Adaptation     Decision = "adaptation"      // a close match needs adjusting
	Collaborative  Decision = "collaborative"   // partial matches to combine
	ExternalSearch Decision = "external_search" // weak matches, look outside
	NewCreation    Decision = "new_creation"    // nothing relevant at all
)

// outcomeWeightDelta is how much a reported outcome moves the emotional
// weight of each memory that informed the decision.
const outcomeWeightDelta = 0.1

// Outcome is a recorded decision awaiting feedback.
type Outcome struct {
	ID         string
	Task       string
	TaskType   string
	Decision   Decision
	Confidence float64
	Results    []query.Result
	Reasoning  string
}

// TypeStats counts decisions and reported outcomes for one decision type.
type TypeStats struct {
	Count     int
	Successes int
	Failures  int
}

// Recorder persists a feedback experience as a new memory, closing the loop
// between acting and remembering.
type Recorder interface {
	RecordExperience(ctx context.Context, content string, tags []string) error
}

// Engine maps retrieval quality to decisions and applies outcome feedback.
type Engine struct {
	store    brain.Store
	cfg      *brain.Config
	recorder Recorder
	log      *zap.Logger

	mu      sync.Mutex
	pending map[string]*Outcome
	stats   map[Decision]*TypeStats
}

// New creates a decision engine. The recorder may be nil; outcomes are then
// applied to weights but not remembered as experiences.
func New(store brain.Store, cfg *brain.Config, recorder Recorder, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    store,
		cfg:      cfg,
		recorder: recorder,
		log:      log.Named("decide"),
		pending:  make(map[string]*Outcome),
		stats:    make(map[Decision]*TypeStats),
	}
}

// Decide scores the retrieval and picks a course of action. taskType is a
// free-form label such as "debugging" or "implementation"; it travels with the
// outcome so feedback experiences carry it as a tag.
func (e *Engine) Decide(ctx context.Context, task, taskType string, results []query.Result) (*Outcome, error) {
	conf := e.confidence(results)
	decision, reasoning := e.classify(conf, results)

	out := &Outcome{
		ID:         uuid.New().String(),
		Task:       task,
		TaskType:   taskType,
		Decision:   decision,
		Confidence: conf,
		Results:    results,
		Reasoning:  reasoning,
	}

	e.mu.Lock()
	e.pending[out.ID] = out
	s, ok := e.stats[decision]
	if !ok {
		s = &TypeStats{}
		e.stats[decision] = s
	}
	s.Count++
	e.mu.Unlock()

	e.log.Debug("decision made",
		zap.String("task", task),
		zap.String("type", taskType),
		zap.String("decision", string(decision)),
		zap.Float64("confidence", conf))
	return out, nil
}

// confidence blends the best match score, how many matches there are, and how
// important those memories have proven to be.
func (e *Engine) confidence(results []query.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	top := clamp01(results[0].Score)

	coverage := float64(len(results)) / 3
	if coverage > 1 {
		coverage = 1
	}

	var weight float64
	for _, r := range results {
		weight += r.Node.EmotionalWeight
	}
	weight /= float64(len(results))

	conf := 0.6*top + 0.25*coverage + 0.15*weight
	if hasProcedural(results) {
		conf += 0.05
	}
	return clamp01(conf)
}

// hasProcedural reports whether any returned memory is a procedure, whatever
// its rank.
func hasProcedural(results []query.Result) bool {
	for _, r := range results {
		if r.Node.Kind == brain.KindProcedure || r.Node.Layer == brain.LayerProcedural {
			return true
		}
	}
	return false
}

func (e *Engine) classify(conf float64, results []query.Result) (Decision, string) {
	switch {
	case conf >= e.cfg.HighConfidence:
		if hasProcedural(results) {
			return MemoryReuse, "strong match on a proven procedure"
		}
		return Adaptation, "strong match that needs adapting to the task"
	case conf >= e.cfg.LowConfidence:
		return Collaborative, "partial matches worth combining"
	case len(results) > 0:
		return ExternalSearch, "matches too weak to act on"
	default:
		return NewCreation, "no relevant memories"
	}
}

// Report applies outcome feedback: every memory behind the decision gains or
// loses emotional weight, and the experience is recorded as a new memory.
func (e *Engine) Report(ctx context.Context, outcomeID string, success bool) error {
	e.mu.Lock()
	out, ok := e.pending[outcomeID]
	if ok {
		delete(e.pending, outcomeID)
		s := e.stats[out.Decision]
		if success {
			s.Successes++
		} else {
			s.Failures++
		}
	}
	e.mu.Unlock()
	if !ok {
		return &brain.NotFoundError{Kind: "outcome", ID: outcomeID}
	}

	delta := outcomeWeightDelta
	if !success {
		delta = -outcomeWeightDelta
	}
	for _, r := range out.Results {
		n, err := e.store.Get(ctx, r.Node.ID)
		if err != nil {
			if brain.IsNotFound(err) {
				continue
			}
			return err
		}
		n.AdjustWeight(delta)
		if err := e.store.Put(ctx, n); err != nil {
			return fmt.Errorf("persist weight change: %w", err)
		}
	}

	if e.recorder != nil {
		verdict := "succeeded"
		if !success {
			verdict = "failed"
		}
		content := fmt.Sprintf("applying %s for task %q %s", out.Decision, out.Task, verdict)
		tags := []string{"outcome", string(out.Decision)}
		if out.TaskType != "" {
			tags = append(tags, out.TaskType)
		}
		if err := e.recorder.RecordExperience(ctx, content, tags); err != nil {
			return fmt.Errorf("record experience: %w", err)
		}
	}
	return nil
}

// Stats returns a copy of the per-decision counters.
func (e *Engine) Stats() map[Decision]TypeStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[Decision]TypeStats, len(e.stats))
	for d, s := range e.stats {
		out[d] = *s
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
