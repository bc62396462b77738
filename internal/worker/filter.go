package worker

import (
	"encoding/json"
	"strconv"
	"strings"

	xerrors "xpertly/internal/errors"
	"xpertly/internal/logging"
	"xpertly/internal/template"
)

// Filter walks a rendered JSON document and collects every object that
// satisfies the search condition.
type Filter struct {
	ObjectToFilter string `json:"objectToFilter"`
	JSONObj        any    `json:"jsonObj,omitempty"`
	SearchKey      string `json:"searchKey"`
	SearchValue    string `json:"searchValue"`
	Condition      string `json:"condition"`
}

// prepare substitutes references inside the filter input and parses the
// result. Substituted strings keep their JSON quoting here so the document
// stays parseable.
func (f *Filter) prepare(inv *Invocation, task *Task) error {
	ctx := inv.buildRenderContext(task)
	rendered, err := template.RenderJSON(f.ObjectToFilter, ctx)
	if err != nil {
		return xerrors.WrapPrep(err, "render filter input")
	}
	var obj any
	if err := json.Unmarshal([]byte(rendered), &obj); err != nil {
		return xerrors.WrapPrep(err, "filter input is not JSON")
	}
	f.JSONObj = obj
	return nil
}

// Execute searches the prepared document and wraps the matches in the branch
// envelope: statusCode is true when anything matched.
func (f *Filter) Execute(logger logging.Logger) map[string]any {
	results := []any{}
	searchJSON(f.JSONObj, f.SearchKey, f.SearchValue, f.Condition, nil, &results, logging.OrNop(logger))
	return map[string]any{
		"statusCode": len(results) > 0,
		"response": map[string]any{
			"results": results,
			"count":   len(results),
		},
	}
}

// searchJSON depth-first walks node collecting objects that carry searchKey
// with a value satisfying the condition. When a parent is supplied the
// parent is collected instead of the matching object.
func searchJSON(node any, searchKey, searchValue, condition string, parent any, results *[]any, logger logging.Logger) {
	switch v := node.(type) {
	case map[string]any:
		if value, ok := v[searchKey]; ok {
			emit := func() {
				if parent != nil {
					*results = append(*results, parent)
				} else {
					*results = append(*results, node)
				}
			}
			switch condition {
			case "=":
				if s, ok := value.(string); ok && s == searchValue {
					emit()
				}
			case "!=":
				if s, ok := value.(string); !ok || s != searchValue {
					emit()
				}
			case "contains":
				switch inner := value.(type) {
				case string:
					if strings.Contains(inner, searchValue) {
						emit()
					}
				case []any:
					for _, item := range inner {
						if s, ok := item.(string); ok && s == searchValue {
							emit()
						}
					}
				case map[string]any:
					if _, ok := inner[searchValue]; ok {
						emit()
					}
				}
			case "startsWith":
				if s, ok := value.(string); ok && strings.HasPrefix(s, searchValue) {
					emit()
				}
			case ">":
				if num, ok := value.(float64); ok && num > numericSearchValue(searchValue) {
					emit()
				}
			case "<":
				if num, ok := value.(float64); ok && num < numericSearchValue(searchValue) {
					emit()
				}
			default:
				logger.Warn("filter condition %q not supported", condition)
			}
		}
		for _, child := range v {
			searchJSON(child, searchKey, searchValue, condition, parent, results, logger)
		}
	case []any:
		for _, item := range v {
			searchJSON(item, searchKey, searchValue, condition, parent, results, logger)
		}
	}
}

// numericSearchValue coerces the search value for the relational conditions.
// Non-numeric input compares against zero.
func numericSearchValue(raw string) float64 {
	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return num
}
