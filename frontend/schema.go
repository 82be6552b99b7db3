package frontend

import (
	"encoding/json"
	"reflect"
	"strings"
)

// fieldSchema describes one struct field for GET_SCHEMA's benefit. There
// is no schema library anywhere in the example pack this module is
// grounded on, so this is a small reflect-based builder rather than a
// wrapped third-party generator.
type fieldSchema struct {
	Type     string                 `json:"type"`
	Required []string               `json:"required,omitempty"`
	Props    map[string]fieldSchema `json:"properties,omitempty"`
}

var emptySchema = fieldSchema{Type: "object"}

func schemaFor(t reflect.Type) fieldSchema {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		s := fieldSchema{Type: "object", Props: map[string]fieldSchema{}}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			name := f.Name
			omitempty := false
			if tag, ok := f.Tag.Lookup("json"); ok {
				parts := strings.Split(tag, ",")
				if parts[0] == "-" {
					continue
				}
				if parts[0] != "" {
					name = parts[0]
				}
				for _, p := range parts[1:] {
					if p == "omitempty" {
						omitempty = true
					}
				}
			}
			s.Props[name] = schemaFor(f.Type)
			if !omitempty {
				s.Required = append(s.Required, name)
			}
		}
		return s
	case reflect.Slice, reflect.Array:
		return fieldSchema{Type: "array"}
	case reflect.Map:
		return fieldSchema{Type: "object"}
	case reflect.String:
		return fieldSchema{Type: "string"}
	case reflect.Bool:
		return fieldSchema{Type: "boolean"}
	case reflect.Float32, reflect.Float64:
		return fieldSchema{Type: "number"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fieldSchema{Type: "integer"}
	default:
		return fieldSchema{Type: "object"}
	}
}

// TypedHandlerFunc is a handler declared with concrete parameter/result
// types, the shape InstallWithSchema infers {params_schema, result_schema}
// from (spec.md §4.4's "schema-inferring variant"). Out may be the empty
// struct{} for a handler with no result payload, which maps to an empty
// object schema per spec.md §4.4 ("void maps to an empty schema").
type TypedHandlerFunc[In, Out any] func(args *RequestArgs, params In) (Out, error)

// InstallWithSchema adapts a typed handler into a HandlerFunc, populating
// Handler.ParamsSchema/ResultSchema by reflecting over In and Out rather
// than requiring the caller to hand-author them.
func InstallWithSchema[In, Out any](f *Frontend, method string, fn TypedHandlerFunc[In, Out], rw RWClass, forwardable Forwardable) {
	var in In
	var out Out

	paramsSchema := schemaFor(reflect.TypeOf(in))
	resultSchema := schemaFor(reflect.TypeOf(out))
	if _, ok := any(out).(struct{}); ok {
		resultSchema = emptySchema
	}

	wrapped := func(args *RequestArgs) (interface{}, error) {
		params, err := decodeParamsAs[In](args.Params)
		if err != nil {
			return nil, err
		}
		return fn(args, params)
	}

	f.mu.Lock()
	f.handlers[method] = &Handler{
		Func:         wrapped,
		RW:           rw,
		Forwardable:  forwardable,
		ParamsSchema: paramsSchema,
		ResultSchema: resultSchema,
	}
	f.mu.Unlock()
}

// decodeParamsAs re-marshals the loosely-typed decoded params (already a
// map[string]interface{}/[]interface{}/scalar from the JSON/msgpack
// envelope) into In, the same "decode twice" approach jsonrpc.UnpackJSON
// already takes for the outer envelope.
func decodeParamsAs[In any](params interface{}) (In, error) {
	var out In
	b, err := json.Marshal(params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}
