package health

import (
	"context"
	"errors"
	"testing"
)

func TestFuncCheckerHealthy(t *testing.T) {
	c := &FuncChecker{CheckName: "ok", Probe: func(ctx context.Context) error { return nil }}
	if c.Type() != CheckTypeExec {
		t.Fatalf("expected CheckTypeExec, got %v", c.Type())
	}
	res := c.Check(context.Background())
	if !res.Healthy {
		t.Fatalf("expected healthy result, got %+v", res)
	}
	if res.Message != "ok" {
		t.Fatalf("expected message %q, got %q", "ok", res.Message)
	}
}

func TestFuncCheckerUnhealthy(t *testing.T) {
	c := &FuncChecker{Probe: func(ctx context.Context) error { return errors.New("store is closed") }}
	res := c.Check(context.Background())
	if res.Healthy {
		t.Fatalf("expected unhealthy result, got %+v", res)
	}
	if res.Message != "store is closed" {
		t.Fatalf("expected probe error message, got %q", res.Message)
	}
}

func TestRunAll(t *testing.T) {
	checks := map[string]Checker{
		"store":  &FuncChecker{Probe: func(ctx context.Context) error { return nil }},
		"vector": &FuncChecker{Probe: func(ctx context.Context) error { return errors.New("wedged") }},
	}
	results := RunAll(context.Background(), checks)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results["store"].Healthy {
		t.Fatalf("expected store healthy")
	}
	if results["vector"].Healthy {
		t.Fatalf("expected vector unhealthy")
	}
}
