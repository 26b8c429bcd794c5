// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"strconv"
	"strings"

	"github.com/bmad-forge/bmad-core/internal/errs"
)

// EvalGuard evaluates the minimal guard expression language: an identifier (truthy against vars), a literal `true`/`false`, or a
// binary comparison (`==`, `!=`, `<`, `<=`, `>`, `>=`, `is`, `is not`)
// between an identifier and a literal (number, single-quoted string, or
// bool). An empty expr is always true (no guard).
func EvalGuard(expr string, vars map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}

	if op, left, right, ok := splitComparison(expr); ok {
		lv := resolveOperand(left, vars)
		rv := resolveOperand(right, vars)
		return compare(op, lv, rv)
	}

	// No comparison operator: bare identifier or literal, truthy test.
	v := resolveOperand(expr, vars)
	return truthy(v), nil
}

// comparisonOps is checked longest-token-first so "is not" is matched
// before "is".
var comparisonOps = []string{"is not", "==", "!=", "<=", ">=", "is", "<", ">"}

func splitComparison(expr string) (op, left, right string, ok bool) {
	for _, candidate := range comparisonOps {
		sep := " " + candidate + " "
		if idx := strings.Index(expr, sep); idx >= 0 {
			return candidate, strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+len(sep):]), true
		}
	}
	return "", "", "", false
}

// resolveOperand parses a single-quoted string, number, bool literal, or
// else treats the token as a variable identifier resolved against vars (nil
// if absent).
func resolveOperand(token string, vars map[string]any) any {
	token = strings.TrimSpace(token)
	if len(token) >= 2 && strings.HasPrefix(token, "'") && strings.HasSuffix(token, "'") {
		return token[1 : len(token)-1]
	}
	if token == "true" {
		return true
	}
	if token == "false" {
		return false
	}
	if n, err := strconv.ParseFloat(token, 64); err == nil {
		return n
	}
	if vars == nil {
		return nil
	}
	return vars[token]
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return true
	}
}

func compare(op string, lv, rv any) (bool, error) {
	switch op {
	case "==", "is":
		return equal(lv, rv), nil
	case "!=", "is not":
		return !equal(lv, rv), nil
	case "<", "<=", ">", ">=":
		lf, lok := lv.(float64)
		rf, rok := rv.(float64)
		if !lok || !rok {
			return false, errs.Validationf(component, "compare", "operator %q requires numeric operands, got %T and %T", op, lv, rv)
		}
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	default:
		return false, errs.Validationf(component, "compare", "unsupported operator %q", op)
	}
}

func equal(lv, rv any) bool {
	lf, lok := lv.(float64)
	rf, rok := rv.(float64)
	if lok && rok {
		return lf == rf
	}
	return lv == rv
}
