package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"xpertly/internal/asset"
	xerrors "xpertly/internal/errors"

	"github.com/google/uuid"
)

// State is the lifecycle of one invocation.
type State int

const (
	StatePending State = iota
	StateRunning
	StateWaiting
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Invocation is one run of a worker graph against at most one tag. Runs
// sharing an execution id share nothing but their logs.
type Invocation struct {
	TenantID      uuid.UUID
	TriggeredBy   string
	TriggeredByID uuid.UUID
	Worker        *Worker
	ExecutionID   uuid.UUID
	RunID         uuid.UUID
	Tag           string
	AuthToken     string

	deps      *Deps
	waitToken string

	mu      sync.Mutex
	outputs map[string]any
	state   State
}

// NewInvocation builds a run over its own copy of the worker and mints the
// wait token handed to tasks that suspend.
func NewInvocation(w *Worker, tenantID uuid.UUID, triggeredBy string, triggeredByID uuid.UUID, authToken string, executionID uuid.UUID, tag string, deps *Deps) (*Invocation, error) {
	runID := uuid.New()
	waitToken, err := deps.Signer.Mint(runID, authToken)
	if err != nil {
		return nil, err
	}
	return &Invocation{
		TenantID:      tenantID,
		TriggeredBy:   triggeredBy,
		TriggeredByID: triggeredByID,
		Worker:        w.Clone(),
		ExecutionID:   executionID,
		RunID:         runID,
		Tag:           tag,
		AuthToken:     authToken,
		deps:          deps,
		waitToken:     waitToken,
		outputs:       map[string]any{},
		state:         StatePending,
	}, nil
}

// State returns the current lifecycle state.
func (inv *Invocation) State() State {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.state
}

func (inv *Invocation) setState(s State) {
	inv.mu.Lock()
	inv.state = s
	inv.mu.Unlock()
}

func (inv *Invocation) setOutput(reactID string, value any) {
	inv.mu.Lock()
	inv.outputs[reactID] = value
	inv.mu.Unlock()
}

func (inv *Invocation) outputsCopy() map[string]any {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	copied := make(map[string]any, len(inv.outputs))
	for k, v := range inv.outputs {
		copied[k] = v
	}
	return copied
}

// cloneForLoop copies the invocation for one loop iteration. Outputs are
// copied, not shared: writes inside the iteration stay local to it.
func (inv *Invocation) cloneForLoop() *Invocation {
	return &Invocation{
		TenantID:      inv.TenantID,
		TriggeredBy:   inv.TriggeredBy,
		TriggeredByID: inv.TriggeredByID,
		Worker:        inv.Worker,
		ExecutionID:   inv.ExecutionID,
		RunID:         inv.RunID,
		Tag:           inv.Tag,
		AuthToken:     inv.AuthToken,
		deps:          inv.deps,
		waitToken:     inv.waitToken,
		outputs:       inv.outputsCopy(),
		state:         inv.State(),
	}
}

// Start runs the graph from its entry task.
func (inv *Invocation) Start(ctx context.Context) {
	inv.setState(StateRunning)
	activeRuns.Inc()
	defer activeRuns.Dec()
	inv.log(ctx, EventWorkerStart, nil, nil, nil)
	inv.run(ctx)
}

// run walks the graph from Worker.Start until a terminal event: completion,
// failure or suspension.
func (inv *Invocation) run(ctx context.Context) {
	current := inv.Worker.Tasks[inv.Worker.Start]
	for current != nil {
		task := current.Clone()
		if err := task.prepare(ctx, inv); err != nil {
			inv.fail(ctx, task, err)
			return
		}

		// nested loop tasks stay unrendered; their inner tasks render when
		// each iteration executes
		if task.Handler.Kind != KindLoop {
			rendered, err := inv.renderTwice(task)
			if err != nil {
				inv.fail(ctx, task, err)
				return
			}
			task = rendered
		}

		inv.log(ctx, EventTaskStart, task, nil, nil)

		output, err := task.execute(ctx, inv)
		if err != nil {
			inv.fail(ctx, task, err)
			return
		}

		reactID := task.ReactID
		inv.Worker.LatestTask = &reactID

		var next *Task
		if task.Next != nil {
			branch := task.Next.True
			switch task.Handler.Kind {
			case KindConditional, KindFilter:
				if !output.StatusBool() {
					branch = task.Next.False
				}
			}
			if branch != nil {
				next = inv.Worker.Tasks[*branch]
			}
		}

		if task.NeedsToWait {
			if err := inv.suspend(ctx); err != nil {
				inv.fail(ctx, task, err)
				return
			}
			inv.setState(StateWaiting)
			inv.log(ctx, EventTaskSuccess, task, output, nil)
			runsTotal.WithLabelValues("suspended").Inc()
			return
		}

		inv.log(ctx, EventTaskSuccess, task, output, nil)
		if next == nil {
			inv.log(ctx, EventWorkerSuccess, nil, nil, nil)
			inv.setState(StateComplete)
			runsTotal.WithLabelValues("complete").Inc()
			return
		}
		current = next
	}
}

func (inv *Invocation) fail(ctx context.Context, task *Task, err error) {
	inv.log(ctx, EventTaskFail, task, nil, err)
	inv.log(ctx, EventWorkerFail, nil, nil, nil)
	inv.setState(StateFailed)
	runsTotal.WithLabelValues("failed").Inc()
}

// suspend persists the full invocation so an external callback can pick the
// run back up. A run that could not be persisted is not resumable, so a
// persist failure fails the run rather than handing out a dead wait token.
func (inv *Invocation) suspend(ctx context.Context) error {
	var tag any
	if inv.Tag != "" {
		tag = inv.Tag
	}
	payload := map[string]any{
		"tenantId":      inv.TenantID,
		"triggeredBy":   inv.TriggeredBy,
		"triggeredById": inv.TriggeredByID,
		"worker":        inv.Worker,
		"executionId":   inv.ExecutionID,
		"runId":         inv.RunID,
		"tag":           tag,
		"authToken":     inv.AuthToken,
		"outputs":       inv.outputsCopy(),
		"assets":        inv.collectAssets(),
		"@timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if err := inv.deps.Persist.StoreSuspended(ctx, inv.AuthToken, inv.RunID, payload); err != nil {
		return xerrors.WrapTask(err, "persist suspended run %s", inv.RunID)
	}
	return nil
}

// collectAssets merges every task's attachment into one view for the
// suspension payload.
func (inv *Invocation) collectAssets() *asset.Assets {
	merged := asset.New()
	for _, task := range inv.Worker.Tasks {
		if task.Assets == nil {
			continue
		}
		merged.Schema = append(merged.Schema, task.Assets.Schema...)
		for tag, bucket := range task.Assets.Objects {
			for i := range bucket.Assets {
				merged.AddObject(tag, asset.Object{Asset: &bucket.Assets[i]})
			}
			for i := range bucket.Devices {
				merged.AddObject(tag, asset.Object{Device: &bucket.Devices[i]})
			}
		}
	}
	return merged
}

type suspendedPayload struct {
	TenantID      uuid.UUID      `json:"tenantId"`
	TriggeredBy   string         `json:"triggeredBy"`
	TriggeredByID uuid.UUID      `json:"triggeredById"`
	Worker        *Worker        `json:"worker"`
	ExecutionID   uuid.UUID      `json:"executionId"`
	RunID         uuid.UUID      `json:"runId"`
	Tag           *string        `json:"tag"`
	AuthToken     string         `json:"authToken"`
	Outputs       map[string]any `json:"outputs"`
}

// FromSuspended rebuilds an invocation from its persisted payload and mints
// a fresh wait token in case the run suspends again.
func FromSuspended(raw json.RawMessage, deps *Deps) (*Invocation, error) {
	var payload suspendedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, xerrors.WrapTask(err, "decode suspended run")
	}
	if payload.Worker == nil {
		return nil, xerrors.NewTaskError("suspended run %s carries no worker", payload.RunID)
	}
	waitToken, err := deps.Signer.Mint(payload.RunID, payload.AuthToken)
	if err != nil {
		return nil, err
	}
	outputs := payload.Outputs
	if outputs == nil {
		outputs = map[string]any{}
	}
	tag := ""
	if payload.Tag != nil {
		tag = *payload.Tag
	}
	return &Invocation{
		TenantID:      payload.TenantID,
		TriggeredBy:   payload.TriggeredBy,
		TriggeredByID: payload.TriggeredByID,
		Worker:        payload.Worker,
		ExecutionID:   payload.ExecutionID,
		RunID:         payload.RunID,
		Tag:           tag,
		AuthToken:     payload.AuthToken,
		deps:          deps,
		waitToken:     waitToken,
		outputs:       outputs,
		state:         StatePending,
	}, nil
}

// Resume merges the callback's output into the suspended task's record and
// continues down that task's true branch. Endpoint tasks are the only kind
// that suspends, so the true branch is always the right one.
func (inv *Invocation) Resume(ctx context.Context, customOutput any) {
	if inv.Worker.LatestTask == nil {
		inv.Start(ctx)
		return
	}
	latest, ok := inv.Worker.Tasks[*inv.Worker.LatestTask]
	if !ok {
		inv.log(ctx, EventWorkerFail, nil, nil, nil)
		inv.setState(StateFailed)
		return
	}

	inv.mu.Lock()
	merged, _ := inv.outputs[latest.ReactID].(map[string]any)
	if merged == nil {
		merged = map[string]any{}
	}
	merged["customOutput"] = customOutput
	inv.outputs[latest.ReactID] = merged
	inv.mu.Unlock()

	final := map[string]any{
		"statusCode": 200,
		"response":   merged,
	}
	inv.log(ctx, EventTaskSuccess, latest, &TaskOutput{Kind: latest.Handler.Kind, Value: final}, nil)

	if latest.Next == nil || latest.Next.True == nil {
		inv.log(ctx, EventWorkerSuccess, nil, nil, nil)
		inv.setState(StateComplete)
		runsTotal.WithLabelValues("complete").Inc()
		return
	}
	inv.Worker.Start = *latest.Next.True
	inv.setState(StateRunning)
	activeRuns.Inc()
	defer activeRuns.Dec()
	inv.run(ctx)
}

// Cancel fails the suspended run. The caller's message lands on an api_fail
// event against the task that was waiting.
func (inv *Invocation) Cancel(ctx context.Context, message any) {
	if inv.Worker.LatestTask != nil {
		if latest, ok := inv.Worker.Tasks[*inv.Worker.LatestTask]; ok {
			final := map[string]any{
				"statusCode": 500,
				"response":   message,
			}
			inv.log(ctx, EventAPIFail, latest, &TaskOutput{Kind: latest.Handler.Kind, Value: final}, nil)
		}
	}
	inv.log(ctx, EventWorkerFail, nil, nil, nil)
	inv.setState(StateFailed)
	runsTotal.WithLabelValues("cancelled").Inc()
}
