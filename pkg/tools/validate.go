package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Type names the wire types a tool parameter can declare.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeList   Type = "list"
	TypeMap    Type = "map"
	TypeAny    Type = "any"
)

// Deterministic error codes for argument validation failures.
const (
	ErrArgMissing = "ERR_ARG_MISSING"
	ErrArgType    = "ERR_ARG_TYPE"
	ErrArgEnum    = "ERR_ARG_ENUM"
	ErrArgParse   = "ERR_ARG_PARSE"
)

// ParamSpec declares one tool parameter: its wire type, whether the
// host must supply it, and the coercions the dispatcher applies before
// the handler runs.
type ParamSpec struct {
	Name     string
	Type     Type
	Elem     Type // list element type; empty means any
	Required bool
	Nullable bool
	Default  any
	Enum     []string
	// Variants declares a sum of types tried in order; the first
	// coercion that succeeds wins. Overrides Type when set.
	Variants    []Type
	Description string
}

// ArgError reports one offending parameter.
type ArgError struct {
	Code    string `json:"code"`
	Param   string `json:"param"`
	Message string `json:"message"`
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("%s: %s (param: %s)", e.Code, e.Message, e.Param)
}

// ArgErrors aggregates every offending parameter from one call so the
// host can fix them all at once.
type ArgErrors []*ArgError

func (e ArgErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// CoerceArgs checks raw host arguments against the declared parameters
// and returns a fully coerced copy. Hosts are dynamically typed, so
// JSON-ish scalars are accepted wherever the target type is recoverable:
// "42" coerces to an int parameter, 95.5 stringifies for a string one.
// On failure every offending parameter is reported and no partial
// output is returned. Undeclared keys are dropped.
func CoerceArgs(spec []ParamSpec, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(spec))
	var errs ArgErrors

	for _, p := range spec {
		val, present := raw[p.Name]
		if !present {
			switch {
			case p.Default != nil:
				out[p.Name] = p.Default
			case p.Required:
				errs = append(errs, &ArgError{Code: ErrArgMissing, Param: p.Name,
					Message: "required parameter is missing"})
			}
			continue
		}
		if val == nil {
			switch {
			case p.Nullable:
				out[p.Name] = nil
			case p.Required:
				errs = append(errs, &ArgError{Code: ErrArgMissing, Param: p.Name,
					Message: "required parameter is null"})
			case p.Default != nil:
				out[p.Name] = p.Default
			}
			continue
		}

		coerced, cerr := coerceParam(p, val)
		if cerr != nil {
			errs = append(errs, cerr)
			continue
		}
		if len(p.Enum) > 0 {
			if s, ok := coerced.(string); ok && !slices.Contains(p.Enum, s) {
				errs = append(errs, &ArgError{Code: ErrArgEnum, Param: p.Name,
					Message: fmt.Sprintf("%q is not one of: %s", s, strings.Join(p.Enum, ", "))})
				continue
			}
		}
		out[p.Name] = coerced
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func coerceParam(p ParamSpec, val any) (any, *ArgError) {
	if len(p.Variants) == 0 {
		return coerceType(p.Name, p.Type, p.Elem, val)
	}
	reasons := make([]string, 0, len(p.Variants))
	for _, t := range p.Variants {
		v, err := coerceType(p.Name, t, p.Elem, val)
		if err == nil {
			return v, nil
		}
		reasons = append(reasons, fmt.Sprintf("as %s: %s", t, err.Message))
	}
	return nil, &ArgError{Code: ErrArgType, Param: p.Name,
		Message: "no declared type matched (" + strings.Join(reasons, "; ") + ")"}
}

func coerceType(param string, t, elem Type, val any) (any, *ArgError) {
	switch t {
	case TypeString:
		return coerceString(param, val)
	case TypeInt:
		return coerceInt(param, val)
	case TypeFloat:
		return coerceFloat(param, val)
	case TypeBool:
		return coerceBool(param, val)
	case TypeList:
		return coerceList(param, elem, val)
	case TypeMap:
		return coerceMap(param, val)
	case TypeAny, "":
		return val, nil
	}
	return nil, &ArgError{Code: ErrArgType, Param: param,
		Message: fmt.Sprintf("unsupported declared type %q", t)}
}

// coerceString stringifies any scalar. Lists and maps are not scalars
// and are rejected rather than serialized behind the caller's back.
func coerceString(param string, val any) (any, *ArgError) {
	switch v := val.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return nil, &ArgError{Code: ErrArgType, Param: param,
		Message: fmt.Sprintf("expected a string, got %s", typeName(val))}
}

func coerceInt(param string, val any) (any, *ArgError) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, &ArgError{Code: ErrArgType, Param: param,
				Message: fmt.Sprintf("expected an integer, got the fraction %v", v)}
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, &ArgError{Code: ErrArgParse, Param: param,
				Message: fmt.Sprintf("cannot parse %q as an integer", v.String())}
		}
		return n, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, &ArgError{Code: ErrArgParse, Param: param,
				Message: "empty string is not an integer"}
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &ArgError{Code: ErrArgParse, Param: param,
				Message: fmt.Sprintf("cannot parse %q as an integer", v)}
		}
		return n, nil
	}
	return nil, &ArgError{Code: ErrArgType, Param: param,
		Message: fmt.Sprintf("expected an integer, got %s", typeName(val))}
}

func coerceFloat(param string, val any) (any, *ArgError) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, &ArgError{Code: ErrArgParse, Param: param,
				Message: fmt.Sprintf("cannot parse %q as a number", v.String())}
		}
		return f, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, &ArgError{Code: ErrArgParse, Param: param,
				Message: "empty string is not a number"}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &ArgError{Code: ErrArgParse, Param: param,
				Message: fmt.Sprintf("cannot parse %q as a number", v)}
		}
		return f, nil
	}
	return nil, &ArgError{Code: ErrArgType, Param: param,
		Message: fmt.Sprintf("expected a number, got %s", typeName(val))}
}

var (
	boolTrue  = []string{"true", "yes", "1", "t", "y"}
	boolFalse = []string{"false", "no", "0", "f", "n"}
)

func coerceBool(param string, val any) (any, *ArgError) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if slices.Contains(boolTrue, s) {
			return true, nil
		}
		if slices.Contains(boolFalse, s) {
			return false, nil
		}
		return nil, &ArgError{Code: ErrArgParse, Param: param,
			Message: fmt.Sprintf("cannot parse %q as a boolean", v)}
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, &ArgError{Code: ErrArgParse, Param: param,
				Message: fmt.Sprintf("cannot parse %q as a boolean", v.String())}
		}
		return f != 0, nil
	}
	return nil, &ArgError{Code: ErrArgType, Param: param,
		Message: fmt.Sprintf("expected a boolean, got %s", typeName(val))}
}

// coerceList accepts a real array, a JSON array in a string, or a
// comma-separated string. Elements are coerced to elem when declared.
func coerceList(param string, elem Type, val any) (any, *ArgError) {
	switch v := val.(type) {
	case []any:
		return coerceElements(param, elem, v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return []any{}, nil
		}
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return coerceElements(param, elem, decoded)
		}
		parts := strings.Split(s, ",")
		items := make([]any, 0, len(parts))
		for _, p := range parts {
			items = append(items, strings.TrimSpace(p))
		}
		return coerceElements(param, elem, items)
	}
	return nil, &ArgError{Code: ErrArgType, Param: param,
		Message: fmt.Sprintf("expected a list, got %s", typeName(val))}
}

func coerceElements(param string, elem Type, items []any) (any, *ArgError) {
	if elem == "" || elem == TypeAny {
		return items, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := coerceType(param, elem, "", item)
		if err != nil {
			return nil, &ArgError{Code: err.Code, Param: param,
				Message: fmt.Sprintf("element %d: %s", i, err.Message)}
		}
		out[i] = v
	}
	return out, nil
}

func coerceMap(param string, val any) (any, *ArgError) {
	switch v := val.(type) {
	case map[string]any:
		return v, nil
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, &ArgError{Code: ErrArgParse, Param: param,
				Message: "string value is not a JSON object"}
		}
		return decoded, nil
	}
	return nil, &ArgError{Code: ErrArgType, Param: param,
		Message: fmt.Sprintf("expected an object, got %s", typeName(val))}
}

// typeName reports a JSON-vocabulary type for error messages.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
