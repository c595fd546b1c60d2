// Package route picks a chat channel for a notification by evaluating an
// ordered list of boolean rules against the notification's attributes.
//
// Expression grammar, with no parenthesis support and a deliberate operator
// order of OR, then AND, then NOT, then the base predicate: `|` splits first
// and short-circuits on the first true branch; `&` splits next and
// short-circuits on the first false branch; a `!` prefix negates the rest;
// the base predicate is `property:value` (exact stringified equality) or
// `property~pattern` (regexp test) with dot-path traversal into nested
// attributes. `a&b|c` therefore reads as `(a&b)|c`.
package route

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Rule pairs a boolean expression with a destination channel.
type Rule struct {
	Expression string `json:"expression" mapstructure:"expression"`
	Channel    string `json:"channel" mapstructure:"channel"`
}

// Router evaluates rules in list order, first match wins.
type Router struct {
	rules []Rule
	log   *zap.SugaredLogger
}

func New(rules []Rule, log *zap.SugaredLogger) *Router {
	return &Router{rules: rules, log: log}
}

// Evaluate returns the channel of the first rule whose expression is
// satisfied by attrs, or ok=false when no rule matches.
func (r *Router) Evaluate(attrs map[string]any) (string, bool) {
	for _, rule := range r.rules {
		if r.eval(rule.Expression, attrs) {
			return rule.Channel, true
		}
	}
	return "", false
}

func (r *Router) eval(expr string, attrs map[string]any) bool {
	if parts := strings.Split(expr, "|"); len(parts) > 1 {
		for _, part := range parts {
			if r.eval(part, attrs) {
				return true
			}
		}
		return false
	}
	if parts := strings.Split(expr, "&"); len(parts) > 1 {
		for _, part := range parts {
			if !r.eval(part, attrs) {
				return false
			}
		}
		return true
	}
	if rest, ok := strings.CutPrefix(expr, "!"); ok {
		return !r.eval(rest, attrs)
	}
	return r.predicate(expr, attrs)
}

func (r *Router) predicate(expr string, attrs map[string]any) bool {
	idx := strings.IndexAny(expr, ":~")
	if idx < 0 {
		return false
	}
	value, ok := lookupPath(attrs, expr[:idx])
	if !ok {
		return false
	}
	matcher := expr[idx+1:]
	if expr[idx] == ':' {
		return stringify(value) == matcher
	}
	re, err := regexp.Compile(matcher)
	if err != nil {
		// A broken pattern is a non-match, never fatal.
		r.log.Warnw("invalid routing regex", "expression", expr, "error", err)
		return false
	}
	return re.MatchString(stringify(value))
}

// lookupPath walks a dot path through nested attribute maps. An unresolved
// path is a non-match, not an error.
func lookupPath(attrs map[string]any, path string) (any, bool) {
	var current any = attrs
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
