package worker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	xerrors "xpertly/internal/errors"
)

// Operator joins a condition or group to the term that follows it. Operators
// are attached to the term that precedes them in the document, so evaluation
// applies each term with the previous term's operator.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// UnmarshalJSON accepts null and "" as "no operator".
func (o *Operator) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*o = ""
		return nil
	}
	switch Operator(*s) {
	case OpAnd, OpOr:
		*o = Operator(*s)
		return nil
	}
	return fmt.Errorf("invalid operator %q", *s)
}

// Comparitor is the comparison applied between the two operands.
type Comparitor string

const (
	CmpEqual          Comparitor = "=="
	CmpNotEqual       Comparitor = "!="
	CmpGreater        Comparitor = ">"
	CmpGreaterOrEqual Comparitor = ">="
	CmpLess           Comparitor = "<"
	CmpLessOrEqual    Comparitor = "<="
	CmpContains       Comparitor = "contains"
	CmpNotContains    Comparitor = "!contains"
	CmpBeginsWith     Comparitor = "begins_with"
	CmpNotBeginsWith  Comparitor = "!begins_with"
	CmpEndsWith       Comparitor = "ends_with"
	CmpNotEndsWith    Comparitor = "!ends_with"
)

var comparitors = map[Comparitor]struct{}{
	CmpEqual: {}, CmpNotEqual: {},
	CmpGreater: {}, CmpGreaterOrEqual: {},
	CmpLess: {}, CmpLessOrEqual: {},
	CmpContains: {}, CmpNotContains: {},
	CmpBeginsWith: {}, CmpNotBeginsWith: {},
	CmpEndsWith: {}, CmpNotEndsWith: {},
}

// UnmarshalJSON rejects unknown comparitors at parse time.
func (c *Comparitor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if _, ok := comparitors[Comparitor(s)]; !ok {
		return fmt.Errorf("invalid comparitor %q", s)
	}
	*c = Comparitor(s)
	return nil
}

// Condition compares two string operands after both have been substituted.
type Condition struct {
	Op         Operator   `json:"op"`
	Comparitor Comparitor `json:"comparitor"`
	Var1       string     `json:"var1"`
	Var2       string     `json:"var2"`
}

// ConditionGroup is a parenthesized run of conditions.
type ConditionGroup struct {
	Op         Operator    `json:"op"`
	Conditions []Condition `json:"conditions"`
}

// Conditional evaluates a boolean expression and picks the branch.
type Conditional struct {
	Expression []ConditionGroup `json:"expression"`
}

// operand is a typed view of a condition variable. Typing is decided per
// operand: date, then number, then boolean, then string. "1" is a number,
// never a boolean.
type operandKind int

const (
	operandString operandKind = iota
	operandNumber
	operandDate
	operandBool
)

type operand struct {
	kind operandKind
	str  string
	num  float64
	date time.Time
	b    bool
}

func parseOperand(raw string) operand {
	if date, err := time.Parse(time.RFC3339, raw); err == nil {
		return operand{kind: operandDate, date: date}
	}
	if num, err := strconv.ParseFloat(raw, 64); err == nil {
		return operand{kind: operandNumber, num: num}
	}
	if raw == "true" || raw == "false" {
		return operand{kind: operandBool, b: raw == "true"}
	}
	return operand{kind: operandString, str: raw}
}

// ordering maps the operand pair onto -1/0/+1. Booleans order false < true.
func (a operand) ordering(b operand) int {
	switch a.kind {
	case operandNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case operandDate:
		return a.date.Compare(b.date)
	case operandBool:
		return boolInt(a.b) - boolInt(b.b)
	default:
		return strings.Compare(a.str, b.str)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// eval applies the comparitor. The string comparitors work on the literal
// operand text; the relational ones require both operands to parse to the
// same type.
func (c *Condition) eval() (bool, error) {
	switch c.Comparitor {
	case CmpContains:
		return strings.Contains(c.Var1, c.Var2), nil
	case CmpNotContains:
		return !strings.Contains(c.Var1, c.Var2), nil
	case CmpBeginsWith:
		return strings.HasPrefix(c.Var1, c.Var2), nil
	case CmpNotBeginsWith:
		return !strings.HasPrefix(c.Var1, c.Var2), nil
	case CmpEndsWith:
		return strings.HasSuffix(c.Var1, c.Var2), nil
	case CmpNotEndsWith:
		return !strings.HasSuffix(c.Var1, c.Var2), nil
	}

	left := parseOperand(c.Var1)
	right := parseOperand(c.Var2)
	if left.kind != right.kind {
		return false, xerrors.NewTaskError("cannot compare variables of different types: %q %s %q", c.Var1, c.Comparitor, c.Var2)
	}

	ord := left.ordering(right)
	switch c.Comparitor {
	case CmpEqual:
		return ord == 0, nil
	case CmpNotEqual:
		return ord != 0, nil
	case CmpGreater:
		return ord > 0, nil
	case CmpGreaterOrEqual:
		return ord >= 0, nil
	case CmpLess:
		return ord < 0, nil
	case CmpLessOrEqual:
		return ord <= 0, nil
	}
	return false, xerrors.NewTaskError("invalid comparitor %q", c.Comparitor)
}

// combine folds term into acc using the operator carried by the preceding
// term. The first term has none and replaces the seed outright.
func combine(acc bool, op Operator, term bool) bool {
	switch op {
	case OpAnd:
		return acc && term
	case OpOr:
		return acc || term
	default:
		return term
	}
}

// eval folds the group's conditions left to right. Every condition is
// evaluated; a condition error always surfaces even when the running result
// would already decide the group.
func (g *ConditionGroup) eval() (bool, error) {
	result := true
	var prev Operator
	for i := range g.Conditions {
		term, err := g.Conditions[i].eval()
		if err != nil {
			return false, err
		}
		result = combine(result, prev, term)
		prev = g.Conditions[i].Op
	}
	return result, nil
}

// Eval folds the groups the same way the conditions fold inside a group.
func (c *Conditional) Eval() (bool, error) {
	result := true
	var prev Operator
	for i := range c.Expression {
		term, err := c.Expression[i].eval()
		if err != nil {
			return false, err
		}
		result = combine(result, prev, term)
		prev = c.Expression[i].Op
	}
	return result, nil
}

// Execute evaluates the expression and wraps the result in the branch
// envelope, echoing back the reconstructed expression text.
func (c *Conditional) Execute() (map[string]any, error) {
	result, err := c.Eval()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"statusCode": result,
		"response":   map[string]any{"expression": c.ExpressionString()},
	}, nil
}

// ExpressionString rebuilds a readable form of the expression: dates as unix
// timestamps, strings quoted, groups parenthesized with their joining
// operator in front.
func (c *Conditional) ExpressionString() string {
	var sb strings.Builder
	for i := range c.Expression {
		group := &c.Expression[i]
		if group.Op != "" {
			fmt.Fprintf(&sb, " %s ", group.Op)
		}
		sb.WriteString("(")
		for j := range group.Conditions {
			cond := &group.Conditions[j]
			fmt.Fprintf(&sb, "%s %s %s", formatOperand(cond.Var1), cond.Comparitor, formatOperand(cond.Var2))
			if cond.Op != "" {
				fmt.Fprintf(&sb, " %s ", cond.Op)
			}
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func formatOperand(raw string) string {
	op := parseOperand(raw)
	switch op.kind {
	case operandDate:
		return strconv.FormatInt(op.date.Unix(), 10)
	case operandNumber:
		return strconv.FormatFloat(op.num, 'f', -1, 64)
	case operandBool:
		return strconv.FormatBool(op.b)
	default:
		return strconv.Quote(raw)
	}
}
