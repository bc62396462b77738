// Package template implements {{SCOPE:identifier.path}} variable substitution.
//
// Tasks are substituted in their serialized JSON form: the engine scans the
// document for references, resolves each against the run context and splices
// the resolved value back in. References that resolve to nothing become the
// literal string "undefined"; an unknown SCOPE fails the render.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	variableRe = regexp.MustCompile(`\{\{((?P<scope>[^:{}]*):)?(?P<ident>[^\[.{}]+)\.?(?P<path>[^}{]*)\}\}`)
	segmentRe  = regexp.MustCompile(`([^\[.}]+|\[\d+\])`)
)

// Context carries every value a reference can resolve against.
type Context struct {
	// Outputs maps reactId to that task's recorded output.
	Outputs map[string]any
	// TaskIDs translates user-facing task names to reactIds. Outputs are
	// recorded against the id, references use the name.
	TaskIDs map[string]string
	// AssetVars maps vendor -> assetType -> attributes for the current tag.
	AssetVars map[string]any
	// Global holds worker globals keyed "GLOBAL:<name>".
	Global map[string]any
	// Custom holds the worker's custom value map.
	Custom map[string]any
	// Vars holds bare names: xpertlyRequestToken, tagName, integration
	// fields and path parameter keys.
	Vars map[string]any
}

// NewContext returns an empty context with all maps allocated.
func NewContext() *Context {
	return &Context{
		Outputs:   map[string]any{},
		TaskIDs:   map[string]string{},
		AssetVars: map[string]any{},
		Global:    map[string]any{},
		Custom:    map[string]any{},
		Vars:      map[string]any{},
	}
}

// SetVar records a bare variable.
func (c *Context) SetVar(key string, value any) {
	if c.Vars == nil {
		c.Vars = map[string]any{}
	}
	c.Vars[key] = value
}

// Render substitutes every reference in input. Resolved strings are escaped
// for embedding inside a JSON string; other values are JSON-encoded.
func Render(input string, ctx *Context) (string, error) {
	return render(input, ctx, false)
}

// RenderJSON substitutes references with their full JSON encoding, so string
// values keep their quotes. Used where the result is parsed back as JSON.
func RenderJSON(input string, ctx *Context) (string, error) {
	return render(input, ctx, true)
}

func render(input string, ctx *Context, jsonEncode bool) (string, error) {
	var renderErr error
	scopeIdx := variableRe.SubexpIndex("scope")
	identIdx := variableRe.SubexpIndex("ident")
	pathIdx := variableRe.SubexpIndex("path")

	out := variableRe.ReplaceAllStringFunc(input, func(match string) string {
		if renderErr != nil {
			return match
		}
		groups := variableRe.FindStringSubmatch(match)
		scope := groups[scopeIdx]
		ident := groups[identIdx]
		path := groups[pathIdx]
		hasScope := groups[1] != ""

		value, defined, err := resolve(ctx, scope, hasScope, ident, path)
		if err != nil {
			renderErr = err
			return match
		}
		if !defined {
			return "undefined"
		}
		return encode(value, jsonEncode)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

func resolve(ctx *Context, scope string, hasScope bool, ident, path string) (any, bool, error) {
	segments := segmentRe.FindAllString(path, -1)

	if !hasScope {
		value, ok := ctx.Vars[ident]
		if !ok {
			return nil, false, nil
		}
		return walk(value, segments)
	}

	switch scope {
	case "OUTPUT":
		id, ok := ctx.TaskIDs[ident]
		if !ok {
			id = "default"
		}
		root, ok := ctx.Outputs[id]
		if !ok {
			return nil, false, nil
		}
		value, defined, _ := walk(root, segments)
		return value, defined, nil
	case "ASSET":
		root, ok := ctx.AssetVars[ident]
		if !ok {
			return nil, false, nil
		}
		return walk(root, segments)
	case "CUSTOM":
		value, ok := ctx.Custom[ident]
		return value, ok, nil
	case "GLOBAL":
		value, ok := ctx.Global["GLOBAL:"+ident]
		return value, ok, nil
	default:
		return nil, false, fmt.Errorf("invalid variable scope %q", scope)
	}
}

// walk follows a parsed path of map keys and [N] list indices.
func walk(root any, segments []string) (any, bool, error) {
	current := root
	for _, seg := range segments {
		if strings.HasPrefix(seg, "[") {
			idx, err := strconv.Atoi(strings.Trim(seg, "[]"))
			if err != nil {
				return nil, false, nil
			}
			list, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(list) {
				return nil, false, nil
			}
			current = list[idx]
			continue
		}
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false, nil
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false, nil
		}
	}
	return current, true, nil
}

func encode(value any, jsonEncode bool) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return "undefined"
	}
	if jsonEncode {
		return string(raw)
	}
	if _, ok := value.(string); ok {
		// embed the escaped body without the surrounding quotes
		return string(raw[1 : len(raw)-1])
	}
	return string(raw)
}
