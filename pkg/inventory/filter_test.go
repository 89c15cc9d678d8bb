package inventory

import (
	"testing"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

func TestFilterMatch(t *testing.T) {
	vars := map[string]any{
		"do_region": "nyc3",
		"do_tags":   []any{"web", "prod"},
		"do_id":     float64(42),
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`do_region == "nyc3"`, true},
		{`do_region == "ams3"`, false},
		{`"web" in do_tags`, true},
		{`"db" in do_tags`, false},
		{`do_id > 10`, true},
		{`do_region == "nyc3" and "prod" in do_tags`, true},
	}
	for _, tt := range tests {
		filter, err := CompileFilters([]string{tt.expr})
		if err != nil {
			t.Fatalf("CompileFilters(%q): %v", tt.expr, err)
		}
		got, err := filter.Match(vars)
		if err != nil {
			t.Fatalf("Match(%q): %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestFilterAllMustPass(t *testing.T) {
	filter, err := CompileFilters([]string{`do_region == "nyc3"`, `do_status == "active"`})
	if err != nil {
		t.Fatalf("CompileFilters: %v", err)
	}
	got, err := filter.Match(map[string]any{"do_region": "nyc3", "do_status": "off"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if got {
		t.Error("host passed despite a failing filter")
	}
}

func TestFilterSyntaxErrorAtCompile(t *testing.T) {
	_, err := CompileFilters([]string{`do_region ==`})
	if !engine.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFilterUndefinedVarErrors(t *testing.T) {
	filter, err := CompileFilters([]string{`do_missing == "x"`})
	if err != nil {
		t.Fatalf("CompileFilters: %v", err)
	}
	if _, err := filter.Match(map[string]any{"do_region": "nyc3"}); err == nil {
		t.Error("expected evaluation error for undefined variable")
	}
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	filter, err := CompileFilters(nil)
	if err != nil {
		t.Fatalf("CompileFilters: %v", err)
	}
	got, err := filter.Match(map[string]any{})
	if err != nil || !got {
		t.Errorf("Match = (%v, %v), want (true, nil)", got, err)
	}
}
