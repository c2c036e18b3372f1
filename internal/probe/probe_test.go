package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

func TestParamsInt(t *testing.T) {
	tests := []struct {
		in      any
		want    int
		present bool
		wantErr bool
	}{
		{nil, 0, false, false},
		{"", 0, false, false},
		{float64(12), 12, true, false},
		{"12", 12, true, false},
		{42, 42, true, false},
		{1.5, 0, false, true},
		{"1.5", 0, false, true},
		{"abc", 0, false, true},
		{[]string{"x"}, 0, false, true},
		{true, 0, false, true},
		{false, 0, false, true},
	}
	for _, tt := range tests {
		p := Params{"n": tt.in}
		got, present, err := p.Int("n")
		if (err != nil) != tt.wantErr {
			t.Errorf("Int(%v) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil {
			if model.KindOf(err) != model.KindInvalidParameter {
				t.Errorf("Int(%v) kind = %s", tt.in, model.KindOf(err))
			}
			continue
		}
		if got != tt.want || present != tt.present {
			t.Errorf("Int(%v) = %d, %v; want %d, %v", tt.in, got, present, tt.want, tt.present)
		}
	}
}

func TestPrepareRejectsUnknownParams(t *testing.T) {
	_, _, err := prepare(context.Background(), Params{"treshold_ms": 5}, paramThresholdMs)
	var pe *model.Error
	if !errors.As(err, &pe) || pe.Kind != model.KindInvalidParameter || pe.Param != "treshold_ms" {
		t.Fatalf("err = %v, want InvalidParameterError on treshold_ms", err)
	}
}

func TestPrepareTimeout(t *testing.T) {
	_, echo, err := prepare(context.Background(), Params{"timeout_ms": float64(1500)})
	if err != nil {
		t.Fatal(err)
	}
	if echo["timeout_ms"] != 1500 {
		t.Errorf("echo = %v", echo)
	}

	for _, bad := range []any{0, -1, 300_001} {
		if _, _, err := prepare(context.Background(), Params{"timeout_ms": bad}); !errors.Is(err, model.ErrInvalidParameter) {
			t.Errorf("timeout_ms=%v: err = %v", bad, err)
		}
	}
}

func TestParseScope(t *testing.T) {
	tests := map[string]Scope{
		"":             ScopeAll,
		"all":          ScopeAll,
		"orders":       ScopeOrders,
		"ORDERS":       ScopeOrders,
		" Inventory ":  ScopeInventory,
		"transactions": ScopeTransactions,
	}
	for in, want := range tests {
		got, err := ParseScope(in)
		if err != nil || got != want {
			t.Errorf("ParseScope(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	_, err := ParseScope("bogus")
	if !errors.Is(err, model.ErrInvalidScope) {
		t.Fatalf("ParseScope(bogus) err = %v", err)
	}
	if !ScopeAll.Includes(ScopeInventory) || ScopeOrders.Includes(ScopeInventory) {
		t.Error("Includes mismatch")
	}
}
