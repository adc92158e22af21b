package pipeline

import (
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// State names the pipeline phases in execution order.
type State string

const (
	stateIdle         State = "idle"
	stateTransforming State = "transforming"
	stateRetrieving   State = "retrieving"
	stateFusing       State = "fusing"
	stateReranking    State = "reranking"
	stateDone         State = "done"
	stateFailed       State = "failed"
)

// run tracks per-request progress: current state, stage timings and the
// names of stages that degraded. One run per Retrieve call, never shared.
type run struct {
	state    State
	timings  []domain.StageTiming
	degraded []string
	observer Observer
}

func newRun(observer Observer) *run {
	return &run{state: stateIdle, observer: observer}
}

func (r *run) advance(next State) {
	r.state = next
}

func (r *run) fail() {
	r.state = stateFailed
}

func (r *run) timed(stage string, fn func()) {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	r.timings = append(r.timings, domain.StageTiming{Stage: stage, Duration: elapsed})
	if r.observer != nil {
		r.observer.ObserveStage(stage, elapsed)
	}
}

func (r *run) degrade(stage string) {
	for _, name := range r.degraded {
		if name == stage {
			return
		}
	}
	r.degraded = append(r.degraded, stage)
	if r.observer != nil {
		r.observer.ObserveDegraded(stage)
	}
}

func (r *run) observeBranch(branch string, outcome string) {
	if r.observer != nil {
		r.observer.ObserveBranch(branch, outcome)
	}
}
