package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the run log event taxonomy.
type Event string

const (
	EventWorkerStart   Event = "worker_start"
	EventWorkerSuccess Event = "worker_success"
	EventWorkerFail    Event = "worker_fail"
	EventTaskStart     Event = "task_start"
	EventTaskSuccess   Event = "task_success"
	EventTaskFail      Event = "task_fail"
	EventAPIFail       Event = "api_fail"
)

// WorkerLog is one run log record. Outputs carries the task output as a
// serialized JSON string, "null" when the event has none.
type WorkerLog struct {
	Timestamp   string    `json:"@timestamp"`
	TenantID    uuid.UUID `json:"tenantId"`
	WorkerName  string    `json:"workerName"`
	WorkerID    uuid.UUID `json:"workerId"`
	ExecutionID uuid.UUID `json:"executionId"`
	WorkerRunID uuid.UUID `json:"workerRunId"`
	RunBy       string    `json:"runBy"`
	RunByUserID uuid.UUID `json:"runByUserId"`
	Tag         string    `json:"tag"`
	TaskName    *string   `json:"taskName"`
	TaskType    *string   `json:"taskType"`
	ReactID     *string   `json:"reactId"`
	Event       Event     `json:"event"`
	Reason      *string   `json:"reason"`
	Outputs     string    `json:"outputs"`
}

// log records one event against the run: persisted to the tenant's run index
// and published to the live hub. Neither sink may fail the run; errors are
// logged and swallowed.
func (inv *Invocation) log(ctx context.Context, event Event, task *Task, output *TaskOutput, cause error) {
	tag := inv.Tag
	if tag == "" {
		tag = "None"
	}

	entry := WorkerLog{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		TenantID:    inv.TenantID,
		WorkerName:  inv.Worker.Name,
		WorkerID:    inv.Worker.ID,
		ExecutionID: inv.ExecutionID,
		WorkerRunID: inv.RunID,
		RunBy:       inv.TriggeredBy,
		RunByUserID: inv.TriggeredByID,
		Tag:         tag,
		Event:       event,
		Outputs:     encodeOutputs(output),
	}
	if task != nil {
		name := task.Name
		taskType := string(task.Handler.Kind)
		reactID := task.ReactID
		entry.TaskName = &name
		entry.TaskType = &taskType
		entry.ReactID = &reactID
	}
	if cause != nil {
		reason := cause.Error()
		entry.Reason = &reason
	}

	taskEvents.WithLabelValues(string(event)).Inc()

	if err := inv.deps.Persist.AppendRunLog(ctx, inv.AuthToken, inv.TenantID, entry); err != nil {
		inv.deps.Logger.Warn("append run log for %s: %v", inv.RunID, err)
	}

	if inv.deps.Hub != nil {
		raw, err := json.Marshal(entry)
		if err == nil {
			if err := inv.deps.Hub.Publish(inv.ExecutionID, raw); err != nil {
				inv.deps.Logger.Warn("publish run log for %s: %v", inv.RunID, err)
			}
		}
	}
}

func encodeOutputs(output *TaskOutput) string {
	if output == nil {
		return "null"
	}
	raw, err := json.Marshal(output.Value)
	if err != nil {
		return "null"
	}
	return string(raw)
}
