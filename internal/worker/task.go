package worker

import (
	"context"
	"encoding/json"

	"xpertly/internal/asset"
	xerrors "xpertly/internal/errors"
)

// Kind discriminates the task handler variants.
type Kind string

const (
	KindEndpoint    Kind = "endpoint"
	KindWebhook     Kind = "webhook"
	KindConditional Kind = "conditional"
	KindLoop        Kind = "loop"
	KindFilter      Kind = "filter"
)

// Next names the react ids of the two possible successors. Only conditional
// and filter tasks ever populate the false branch.
type Next struct {
	True  *string `json:"true"`
	False *string `json:"false"`
}

// Header is one HTTP header pair on an endpoint task.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Handler is the task payload. Exactly one variant matching Kind is set;
// webhook tasks reuse the Endpoint shape.
type Handler struct {
	Kind        Kind         `json:"kind"`
	Endpoint    *Endpoint    `json:"endpoint,omitempty"`
	Conditional *Conditional `json:"conditional,omitempty"`
	Loop        *Loop        `json:"loop,omitempty"`
	Filter      *Filter      `json:"filter,omitempty"`
}

// Task is one executable node of the worker graph.
type Task struct {
	Name        string                    `json:"name"`
	ReactID     string                    `json:"reactId"`
	Next        *Next                     `json:"next"`
	Assets      *asset.Assets             `json:"assets"`
	AssetVars   map[string]map[string]any `json:"assetVars,omitempty"`
	NeedsToWait bool                      `json:"needsToWait"`
	Handler     Handler                   `json:"handler"`
}

// TaskOutput is what a task hands back to the interpreter: the value logged
// on task_success and, for branching kinds, the boolean that picks the
// successor.
type TaskOutput struct {
	Kind  Kind
	Value any
}

// StatusBool extracts the branch selector from a conditional or filter
// envelope. Anything else defaults to the true branch.
func (o *TaskOutput) StatusBool() bool {
	envelope, ok := o.Value.(map[string]any)
	if !ok {
		return true
	}
	status, ok := envelope["statusCode"].(bool)
	if !ok {
		return true
	}
	return status
}

type endpointFields struct {
	Method      string                       `json:"method"`
	Headers     []Header                     `json:"headers"`
	PathParams  map[string]string            `json:"pathParams"`
	QueryParams map[string]map[string]string `json:"queryParams"`
	Body        any                          `json:"body"`
	TargetURL   string                       `json:"targetUrl"`
}

type conditionalFields struct {
	Expression []ConditionGroup `json:"expression"`
}

type loopFields struct {
	Tasks []TaskConfig `json:"tasks"`
}

type filterFields struct {
	ObjectToFilter string `json:"objectToFilter"`
	SearchKey      string `json:"searchKey"`
	SearchValue    string `json:"searchValue"`
	Condition      string `json:"condition"`
}

// taskFromConfig compiles one task node, sniffing the handler kind from the
// fields payload the way the editor emits it.
func taskFromConfig(cfg *TaskConfig) (*Task, error) {
	if cfg.ReactID == "" {
		return nil, xerrors.NewConfigError("task %q is missing a react id", stringOr(cfg.Name, "?"))
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(cfg.Fields, &probe); err != nil {
		return nil, xerrors.NewConfigError("task %q has malformed fields", cfg.ReactID)
	}

	var handler Handler
	switch {
	case hasField(probe, "targetUrl"):
		var fields endpointFields
		if err := json.Unmarshal(cfg.Fields, &fields); err != nil {
			return nil, xerrors.NewConfigError("task %q has malformed endpoint fields: %v", cfg.ReactID, err)
		}
		// query params arrive nested as {"<param>": {"value": "<value>"}};
		// flatten them to a plain key-value map
		var queryParams map[string]string
		if fields.QueryParams != nil {
			queryParams = make(map[string]string, len(fields.QueryParams))
			for key, wrapped := range fields.QueryParams {
				queryParams[key] = wrapped["value"]
			}
		}
		endpoint := &Endpoint{
			Vendor:        stringOr(cfg.Vendor, ""),
			IntegrationID: cfg.IntegrationID,
			Method:        fields.Method,
			Headers:       fields.Headers,
			PathParams:    fields.PathParams,
			QueryParams:   queryParams,
			Body:          fields.Body,
			TargetURL:     fields.TargetURL,
		}
		if cfg.Category == nil {
			return nil, xerrors.NewConfigError("task %q has no category", cfg.ReactID)
		}
		if *cfg.Category == string(KindWebhook) {
			handler = Handler{Kind: KindWebhook, Endpoint: endpoint}
		} else {
			if cfg.IntegrationID == "" {
				return nil, xerrors.NewConfigError("endpoint task %q must have an integration", cfg.ReactID)
			}
			handler = Handler{Kind: KindEndpoint, Endpoint: endpoint}
		}

	case hasField(probe, "expression"):
		var fields conditionalFields
		if err := json.Unmarshal(cfg.Fields, &fields); err != nil {
			return nil, xerrors.NewConfigError("task %q has malformed conditional fields: %v", cfg.ReactID, err)
		}
		handler = Handler{Kind: KindConditional, Conditional: &Conditional{Expression: fields.Expression}}

	case hasField(probe, "tasks"):
		var fields loopFields
		if err := json.Unmarshal(cfg.Fields, &fields); err != nil {
			return nil, xerrors.NewConfigError("task %q has malformed loop fields: %v", cfg.ReactID, err)
		}
		inner := make([]Task, 0, len(fields.Tasks))
		for i := range fields.Tasks {
			task, err := taskFromConfig(&fields.Tasks[i])
			if err != nil {
				return nil, err
			}
			inner = append(inner, *task)
		}
		var schema []asset.SchemaItem
		if cfg.Assets != nil {
			schema = cfg.Assets.Schema
		}
		handler = Handler{Kind: KindLoop, Loop: &Loop{Tasks: inner, Schema: schema}}

	case hasField(probe, "objectToFilter"):
		var fields filterFields
		if err := json.Unmarshal(cfg.Fields, &fields); err != nil {
			return nil, xerrors.NewConfigError("task %q has malformed filter fields: %v", cfg.ReactID, err)
		}
		handler = Handler{Kind: KindFilter, Filter: &Filter{
			ObjectToFilter: fields.ObjectToFilter,
			SearchKey:      fields.SearchKey,
			SearchValue:    fields.SearchValue,
			Condition:      fields.Condition,
		}}

	default:
		return nil, xerrors.NewConfigError("task %q has an unrecognized fields shape", cfg.ReactID)
	}

	if cfg.NeedsToWait && handler.Kind != KindEndpoint {
		return nil, xerrors.NewConfigError("task %q cannot wait: only endpoint tasks suspend", cfg.ReactID)
	}

	return &Task{
		Name:        stringOr(cfg.Name, ""),
		ReactID:     cfg.ReactID,
		Next:        cfg.Next,
		Assets:      cfg.Assets,
		NeedsToWait: cfg.NeedsToWait,
		Handler:     handler,
	}, nil
}

func hasField(probe map[string]json.RawMessage, key string) bool {
	_, ok := probe[key]
	return ok
}

func stringOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// Clone deep-copies the task. The resolved integration on an endpoint
// handler is carried over since it does not survive serialization.
func (t *Task) Clone() *Task {
	raw, err := json.Marshal(t)
	if err != nil {
		copied := *t
		return &copied
	}
	var out Task
	if err := json.Unmarshal(raw, &out); err != nil {
		copied := *t
		return &copied
	}
	if t.Handler.Endpoint != nil && out.Handler.Endpoint != nil {
		out.Handler.Endpoint.integ = t.Handler.Endpoint.integ
	}
	return &out
}

// prepare resolves everything the task needs before substitution: asset
// variables for the current tag, integration credentials, tagged loop
// objects and the filter's rendered input document.
func (t *Task) prepare(ctx context.Context, inv *Invocation) error {
	assetVars, err := t.buildAssetVars(inv)
	if err != nil {
		return err
	}
	t.AssetVars = assetVars

	switch t.Handler.Kind {
	case KindEndpoint:
		return t.Handler.Endpoint.prepare(ctx, inv)
	case KindLoop:
		return t.Handler.Loop.prepare(ctx, inv)
	case KindFilter:
		return t.Handler.Filter.prepare(inv, t)
	}
	return nil
}

// buildAssetVars flattens the task's attached objects into vendor ->
// assetType -> attributes. Devices file under their deviceType attribute and
// get device_model/device_serial injected so templates can reach them.
func (t *Task) buildAssetVars(inv *Invocation) (map[string]map[string]any, error) {
	assetVars := map[string]map[string]any{}
	if t.Assets == nil || len(t.Assets.Objects) == 0 {
		return assetVars, nil
	}
	if inv.Tag == "" {
		return nil, xerrors.NewPrepError("task %q has tagged assets but the run carries no tag", t.ReactID)
	}
	bucket, ok := t.Assets.Objects[inv.Tag]
	if !ok {
		return nil, xerrors.NewPrepError("task %q has no assets for tag %q", t.ReactID, inv.Tag)
	}

	for _, a := range bucket.Assets {
		vendor := assetVars[a.IntegrationType]
		if vendor == nil {
			vendor = map[string]any{}
			assetVars[a.IntegrationType] = vendor
		}
		vendor[a.AssetType] = a.Attributes
	}
	for _, d := range bucket.Devices {
		deviceType, ok := d.Attributes["deviceType"].(string)
		if !ok {
			return nil, xerrors.NewPrepError("device %q has no deviceType attribute", d.DeviceID)
		}
		attributes := make(map[string]any, len(d.Attributes)+2)
		for k, v := range d.Attributes {
			attributes[k] = v
		}
		attributes["device_model"] = d.DeviceModel
		attributes["device_serial"] = d.DeviceSerial

		vendor := assetVars[d.IntegrationType]
		if vendor == nil {
			vendor = map[string]any{}
			assetVars[d.IntegrationType] = vendor
		}
		vendor[deviceType] = attributes
	}
	return assetVars, nil
}

// execute runs the handler and records its output. What gets stored differs
// per kind: endpoints store only the response body, webhooks the full result
// envelope, conditionals the bare branch boolean and filters the result set.
func (t *Task) execute(ctx context.Context, inv *Invocation) (*TaskOutput, error) {
	switch t.Handler.Kind {
	case KindEndpoint:
		result, err := t.Handler.Endpoint.execute(ctx, inv)
		if err != nil {
			return nil, xerrors.WrapTask(err, "endpoint task failed")
		}
		inv.setOutput(t.ReactID, result["response"])
		return &TaskOutput{Kind: KindEndpoint, Value: result}, nil

	case KindWebhook:
		result, err := t.Handler.Endpoint.execute(ctx, inv)
		if err != nil {
			return nil, xerrors.WrapTask(err, "webhook task failed")
		}
		inv.setOutput(t.ReactID, result)
		return &TaskOutput{Kind: KindWebhook, Value: map[string]any{
			"statusCode": 200,
			"response":   "Webhook sent",
		}}, nil

	case KindConditional:
		result, err := t.Handler.Conditional.Execute()
		if err != nil {
			return nil, xerrors.WrapTask(err, "conditional task failed")
		}
		inv.setOutput(t.ReactID, result["statusCode"])
		return &TaskOutput{Kind: KindConditional, Value: result}, nil

	case KindLoop:
		if err := t.Handler.Loop.execute(ctx, inv); err != nil {
			return nil, xerrors.WrapTask(err, "loop task failed")
		}
		inv.setOutput(t.ReactID, true)
		return &TaskOutput{Kind: KindLoop, Value: true}, nil

	case KindFilter:
		result := t.Handler.Filter.Execute(inv.deps.Logger)
		inv.setOutput(t.ReactID, result["response"])
		return &TaskOutput{Kind: KindFilter, Value: result}, nil
	}
	return nil, xerrors.NewTaskError("task %q has unknown handler kind %q", t.ReactID, t.Handler.Kind)
}
