// Package jsonrpc implements the wire codec for the RPC frontend: pack
// detection, request/response envelopes, and the two supported encodings
// (text JSON and a packed msgpack form).
package jsonrpc

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Pack identifies which encoding a request/response body is carried in.
type Pack int

const (
	// PackText is plain JSON, identified by a leading '{'.
	PackText Pack = iota
	// PackMsgPack is the compact binary encoding used for anything else.
	PackMsgPack
)

const (
	FieldJSONRPC  = "jsonrpc"
	FieldID       = "id"
	FieldMethod   = "method"
	FieldParams   = "params"
	FieldReadonly = "readonly"
	FieldSig      = "sig"
	FieldReq      = "req"
	FieldMD       = "md"
	FieldResult   = "result"
	FieldError    = "error"
	FieldCommit   = "commit"
	FieldTerm     = "term"
	FieldGlobal   = "global_commit"

	RPCVersion = "2.0"
)

// DetectPack returns the wire encoding of input, or false if input is empty.
func DetectPack(input []byte) (Pack, bool) {
	if len(input) == 0 {
		return 0, false
	}
	if input[0] == '{' {
		return PackText, true
	}
	return PackMsgPack, true
}

// PackValue encodes v using the given encoding. The msgpack form uses the
// same struct keys as the JSON form (json tags) and writes map keys in
// sorted order, so equal values always pack to the same bytes.
func PackValue(v interface{}, pack Pack) ([]byte, error) {
	switch pack {
	case PackText:
		b, err := json.Marshal(v)
		return b, errors.WithStack(err)
	case PackMsgPack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		enc.SetSortMapKeys(true)
		if err := enc.Encode(v); err != nil {
			return nil, errors.WithStack(err)
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.Errorf("unknown pack: %v", pack)
	}
}

// Unpack decodes input into a generic JSON-shaped value (map[string]interface{}
// for objects), normalising both encodings to the same in-memory shape so the
// rest of the frontend never needs to know which wire form a request arrived
// in.
func Unpack(input []byte, pack Pack) (interface{}, error) {
	switch pack {
	case PackText:
		var v interface{}
		if err := json.Unmarshal(input, &v); err != nil {
			return nil, errors.WithStack(err)
		}
		return v, nil
	case PackMsgPack:
		var v interface{}
		if err := msgpack.Unmarshal(input, &v); err != nil {
			return nil, errors.WithStack(err)
		}
		return normalizeMsgpackMap(v), nil
	default:
		return nil, errors.Errorf("unknown pack: %v", pack)
	}
}

// normalizeMsgpackMap converts map[string]interface{} keys that msgpack may
// decode as map[interface{}]interface{} (when the source used non-string
// keys) into the map[string]interface{} shape JSON uses, recursively.
func normalizeMsgpackMap(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeMsgpackMap(val)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = normalizeMsgpackMap(val)
		}
		return out
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeMsgpackMap(val)
		}
		return t
	default:
		return v
	}
}

// UnpackJSON decodes input into a JSON-shaped object, failing with
// INVALID_REQUEST if decoding errors or the result is not an object.
func UnpackJSON(input []byte, pack Pack) (map[string]interface{}, bool, interface{}) {
	v, err := Unpack(input, pack)
	if err != nil {
		return nil, false, ErrorResponse(0, InvalidRequest, "Exception during unpack.")
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, false, ErrorResponse(0, InvalidRequest, "Non-object.")
	}
	return obj, true, nil
}
