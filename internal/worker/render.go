package worker

import (
	"encoding/json"

	xerrors "xpertly/internal/errors"
	"xpertly/internal/template"
)

// buildRenderContext assembles everything the task's references can resolve
// against. Endpoint tasks additionally expose their integration fields and
// path parameter keys as bare variables.
func (inv *Invocation) buildRenderContext(task *Task) *template.Context {
	ctx := template.NewContext()
	ctx.Outputs = inv.outputsCopy()
	ctx.TaskIDs = inv.Worker.taskNameIndex()
	ctx.Global = inv.Worker.Global
	ctx.Custom = inv.Worker.Custom

	for vendor, types := range task.AssetVars {
		byType := make(map[string]any, len(types))
		for assetType, attrs := range types {
			byType[assetType] = attrs
		}
		ctx.AssetVars[vendor] = byType
	}

	ctx.SetVar("xpertlyRequestToken", inv.waitToken)
	if inv.Tag != "" {
		ctx.SetVar("tagName", inv.Tag)
	}

	if task.Handler.Kind == KindEndpoint && task.Handler.Endpoint != nil {
		if integ := task.Handler.Endpoint.integ; integ != nil {
			for key, value := range integ.TemplateVars() {
				ctx.SetVar(key, value)
			}
		}
		for key, value := range task.Handler.Endpoint.PathParams {
			ctx.SetVar(key, value)
		}
	}
	return ctx
}

// renderTask substitutes references across the task's serialized form and
// decodes it back.
func (inv *Invocation) renderTask(task *Task) (*Task, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return nil, xerrors.WrapPrep(err, "serialize task for rendering")
	}

	rendered, err := template.Render(string(raw), inv.buildRenderContext(task))
	if err != nil {
		return nil, xerrors.WrapPrep(err, "render task %q", task.ReactID)
	}

	var out Task
	if err := json.Unmarshal([]byte(rendered), &out); err != nil {
		return nil, xerrors.WrapPrep(err, "rendered task %q is not valid JSON", task.ReactID)
	}
	// the resolved integration does not survive serialization
	if task.Handler.Endpoint != nil && out.Handler.Endpoint != nil {
		out.Handler.Endpoint.integ = task.Handler.Endpoint.integ
	}
	return &out, nil
}

// renderTwice renders the task a second time so references produced by path
// parameter translation get substituted too.
func (inv *Invocation) renderTwice(task *Task) (*Task, error) {
	once, err := inv.renderTask(task)
	if err != nil {
		return nil, err
	}
	return inv.renderTask(once)
}
