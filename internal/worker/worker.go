// Package worker implements the workflow graph, its interpreter and the
// execution dispatcher.
package worker

import (
	"encoding/json"

	"xpertly/internal/asset"
	xerrors "xpertly/internal/errors"

	"github.com/google/uuid"
)

// Schedule is accepted on worker documents and carried through untouched;
// scheduled execution happens elsewhere.
type Schedule struct {
	Datetime string `json:"datetime"`
	Timezone string `json:"timezone"`
	Repeat   string `json:"repeat"`
}

// WorkerConfig is the editor-facing worker document: an ordered task list
// with react ids wiring the graph together.
type WorkerConfig struct {
	Name                string         `json:"name"`
	ID                  uuid.UUID      `json:"id"`
	TenantID            uuid.UUID      `json:"tenantId"`
	Category            *string        `json:"type"`
	AvailableInAvicenna bool           `json:"availableInAvicenna"`
	Schedule            *Schedule      `json:"schedule,omitempty"`
	Description         string         `json:"description"`
	Tasks               []TaskConfig   `json:"tasks"`
	Global              map[string]any `json:"global"`
	Custom              map[string]any `json:"custom"`
	SchemaID            *string        `json:"schemaId"`
}

// TaskConfig is one node of the editor document. Layout fields (xPos, yPos,
// prev, description) are accepted and ignored by the engine.
type TaskConfig struct {
	Name            *string             `json:"name"`
	Vendor          *string             `json:"vendor"`
	Category        *string             `json:"type"`
	TaskID          *uuid.UUID          `json:"taskId"`
	ReactID         string              `json:"reactId"`
	Description     *string             `json:"description"`
	XPos            int64               `json:"xPos"`
	YPos            int64               `json:"yPos"`
	NeedsToWait     bool                `json:"needsToWait"`
	Fields          json.RawMessage     `json:"fields"`
	Next            *Next               `json:"next"`
	Prev            *Next               `json:"prev"`
	Assets          *asset.Assets       `json:"assets"`
	PathParamsPair  []map[string]string `json:"pathParamsPair"`
	QueryParamsPair []map[string]string `json:"queryParamsPair"`
	IntegrationID   string              `json:"integrationId"`
}

// Worker is the executable graph: tasks keyed by react id, entered at Start.
type Worker struct {
	Name                string           `json:"name"`
	ID                  uuid.UUID        `json:"id"`
	Category            *string          `json:"type"`
	AvailableInAvicenna bool             `json:"availableInAvicenna"`
	Description         string           `json:"description"`
	TenantID            uuid.UUID        `json:"tenantId"`
	Tasks               map[string]*Task `json:"tasks"`
	Start               string           `json:"start"`
	LatestTask          *string          `json:"latestTask"`
	Custom              map[string]any   `json:"custom"`
	Global              map[string]any   `json:"global"`
}

// FromConfig compiles a WorkerConfig into a Worker. The first task in the
// document is the entry point. Unknown task shapes, dangling branch
// references, duplicate react ids and misplaced needsToWait flags are all
// rejected here so the interpreter never sees them.
func FromConfig(cfg *WorkerConfig) (*Worker, error) {
	if len(cfg.Tasks) == 0 {
		return nil, xerrors.NewConfigError("worker %q has no tasks", cfg.Name)
	}

	tasks := make(map[string]*Task, len(cfg.Tasks))
	for i := range cfg.Tasks {
		taskCfg := &cfg.Tasks[i]
		task, err := taskFromConfig(taskCfg)
		if err != nil {
			return nil, err
		}
		if _, exists := tasks[task.ReactID]; exists {
			return nil, xerrors.NewConfigError("duplicate react id %q", task.ReactID)
		}
		tasks[task.ReactID] = task
	}

	for _, task := range tasks {
		if task.Next == nil {
			continue
		}
		for _, branch := range []*string{task.Next.True, task.Next.False} {
			if branch == nil {
				continue
			}
			if _, ok := tasks[*branch]; !ok {
				return nil, xerrors.NewConfigError("task %q references unknown next task %q", task.ReactID, *branch)
			}
		}
	}

	return &Worker{
		Name:                cfg.Name,
		ID:                  cfg.ID,
		Category:            cfg.Category,
		AvailableInAvicenna: cfg.AvailableInAvicenna,
		Description:         cfg.Description,
		TenantID:            cfg.TenantID,
		Tasks:               tasks,
		Start:               cfg.Tasks[0].ReactID,
		Custom:              cfg.Custom,
		Global:              cfg.Global,
	}, nil
}

// Clone deep-copies the worker so concurrent invocations share nothing.
func (w *Worker) Clone() *Worker {
	raw, err := json.Marshal(w)
	if err != nil {
		return w
	}
	var out Worker
	if err := json.Unmarshal(raw, &out); err != nil {
		return w
	}
	return &out
}

// taskNameIndex maps user-facing task names to react ids. Outputs are keyed
// by id, references use the name.
func (w *Worker) taskNameIndex() map[string]string {
	index := make(map[string]string, len(w.Tasks))
	for reactID, task := range w.Tasks {
		index[task.Name] = reactID
	}
	return index
}
