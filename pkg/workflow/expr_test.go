package workflow

import "testing"

func TestEvalGuardEmptyIsTrue(t *testing.T) {
	ok, err := EvalGuard("", nil)
	if err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
}

func TestEvalGuardBareIdentifierTruthy(t *testing.T) {
	vars := map[string]any{"enabled": true, "disabled": false}
	if ok, err := EvalGuard("enabled", vars); err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
	if ok, err := EvalGuard("disabled", vars); err != nil || ok {
		t.Fatalf("got %v %v", ok, err)
	}
	if ok, _ := EvalGuard("missing", vars); ok {
		t.Fatal("expected false for a missing identifier")
	}
}

func TestEvalGuardLiterals(t *testing.T) {
	if ok, _ := EvalGuard("true", nil); !ok {
		t.Fatal("expected true")
	}
	if ok, _ := EvalGuard("false", nil); ok {
		t.Fatal("expected false")
	}
}

func TestEvalGuardEquality(t *testing.T) {
	vars := map[string]any{"mode": "fast"}
	if ok, err := EvalGuard("mode == 'fast'", vars); err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
	if ok, err := EvalGuard("mode != 'slow'", vars); err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
	if ok, err := EvalGuard("mode is 'fast'", vars); err != nil || !ok {
		t.Fatalf("got %v %v", ok, err)
	}
	if ok, err := EvalGuard("mode is not 'fast'", vars); err != nil || ok {
		t.Fatalf("got %v %v", ok, err)
	}
}

func TestEvalGuardNumericComparison(t *testing.T) {
	vars := map[string]any{"count": 5.0}
	cases := []struct {
		expr string
		want bool
	}{
		{"count > 3", true},
		{"count >= 5", true},
		{"count < 3", false},
		{"count <= 5", true},
		{"count == 5", true},
	}
	for _, c := range cases {
		ok, err := EvalGuard(c.expr, vars)
		if err != nil {
			t.Fatalf("%s: %v", c.expr, err)
		}
		if ok != c.want {
			t.Errorf("%s: got %v, want %v", c.expr, ok, c.want)
		}
	}
}

func TestEvalGuardNonNumericOrderingFails(t *testing.T) {
	vars := map[string]any{"mode": "fast"}
	if _, err := EvalGuard("mode > 3", vars); err == nil {
		t.Fatal("expected error comparing a string with ordering operators")
	}
}
