package inventory

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

// Filter evaluates Starlark boolean expressions against per-host variables.
// Each host var is exposed as a global under its prefixed name, so a filter
// reads like `do_region == "nyc3" and "web" in do_tags`.
type Filter struct {
	exprs []string
}

// CompileFilters parses the filter expressions up front so syntax errors
// surface at config load rather than per host.
func CompileFilters(exprs []string) (*Filter, error) {
	for _, src := range exprs {
		if _, err := syntax.ParseExpr("filter", src, 0); err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("invalid filter %q: %v", src, err))
		}
	}
	return &Filter{exprs: exprs}, nil
}

// Match reports whether every filter expression is true for the host vars.
// An evaluation error is returned to the caller, which excludes the host
// unless strict mode turns it into a build failure.
func (f *Filter) Match(vars map[string]any) (bool, error) {
	if len(f.exprs) == 0 {
		return true, nil
	}

	predeclared := starlark.StringDict{}
	for name, val := range vars {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return false, fmt.Errorf("convert host var %s: %w", name, err)
		}
		predeclared[name] = sv
	}

	thread := &starlark.Thread{
		Name:  "inventory-filter",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	for _, expr := range f.exprs {
		value, err := starlark.Eval(thread, "filter", expr, predeclared)
		if err != nil {
			return false, fmt.Errorf("filter %q: %w", expr, err)
		}
		if !bool(value.Truth()) {
			return false, nil
		}
	}
	return true, nil
}

// toStarlarkValue converts a decoded-JSON Go value to a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		// JSON numbers decode as float64; keep whole numbers as ints so
		// filters can compare against integer literals.
		if val == float64(int64(val)) {
			return starlark.MakeInt64(int64(val)), nil
		}
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
