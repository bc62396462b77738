package worker

import (
	"context"

	"xpertly/internal/asset"
	xerrors "xpertly/internal/errors"
)

// Loop repeats its inner task chain once per tagged object. Each iteration
// runs against a cloned invocation so inner tasks can reference each other
// without leaking writes into the surrounding run.
type Loop struct {
	Tasks      []Task             `json:"tasks"`
	Schema     []asset.SchemaItem `json:"schema,omitempty"`
	LoopAssets []asset.Object     `json:"loopAssets,omitempty"`
}

// prepare fetches every object carrying the run's tag.
func (l *Loop) prepare(ctx context.Context, inv *Invocation) error {
	if inv.Tag == "" {
		return xerrors.NewPrepError("loop tasks require a tag")
	}
	objects, err := inv.deps.Assets.ByTag(ctx, inv.AuthToken, inv.TenantID, inv.Tag)
	if err != nil {
		return xerrors.WrapPrep(err, "fetch loop assets")
	}
	l.LoopAssets = objects
	return nil
}

// execute runs the inner chain once per object. Inner tasks log through the
// loop-local invocation and their outputs are stored as full result
// envelopes, unlike top-level tasks which store only the response body.
func (l *Loop) execute(ctx context.Context, inv *Invocation) error {
	for i := range l.LoopAssets {
		object := l.LoopAssets[i]
		loopInv := inv.cloneForLoop()

		for j := range l.Tasks {
			loopInv.log(ctx, EventTaskStart, &l.Tasks[j], nil, nil)

			task := l.Tasks[j].Clone()
			if task.Assets == nil {
				task.Assets = asset.New()
			}
			task.Assets.AddObject(inv.Tag, object)

			if err := task.prepare(ctx, loopInv); err != nil {
				loopInv.log(ctx, EventTaskFail, task, nil, err)
				return xerrors.WrapTask(err, "loop task failed because an inner task failed")
			}

			// nested loops stay unrendered; their inner tasks render when
			// their own iteration executes
			if task.Handler.Kind != KindLoop {
				rendered, err := loopInv.renderTwice(task)
				if err != nil {
					loopInv.log(ctx, EventTaskFail, task, nil, err)
					return xerrors.WrapTask(err, "loop task failed because an inner task failed")
				}
				task = rendered
			}

			output, err := task.execute(ctx, loopInv)
			if err != nil {
				loopInv.log(ctx, EventTaskFail, task, nil, err)
				return xerrors.WrapTask(err, "loop task failed because an inner task failed")
			}
			loopInv.log(ctx, EventTaskSuccess, task, output, nil)

			switch output.Kind {
			case KindEndpoint, KindWebhook, KindConditional:
				loopInv.setOutput(task.ReactID, output.Value)
			}
		}
	}
	return nil
}
