package jsonrpc

import "testing"

func TestDetectPack(t *testing.T) {
	if _, ok := DetectPack(nil); ok {
		t.Errorf("empty input should not detect a pack")
	}

	pack, ok := DetectPack([]byte(`{"jsonrpc":"2.0"}`))
	if !ok || pack != PackText {
		t.Errorf("leading '{' should detect PackText, got %v, %v", pack, ok)
	}

	pack, ok = DetectPack([]byte{0x81, 0x01})
	if !ok || pack != PackMsgPack {
		t.Errorf("non '{' leading byte should detect PackMsgPack, got %v, %v", pack, ok)
	}
}

func TestUnpackJSONRejectsNonObject(t *testing.T) {
	_, ok, errResp := UnpackJSON([]byte(`[1,2,3]`), PackText)
	if ok {
		t.Fatalf("array input should not be accepted as an rpc object")
	}
	if errResp.(*Response).Error.Code != InvalidRequest {
		t.Errorf("expected InvalidRequest, got %v", errResp)
	}
}

func TestUnpackJSONRoundTrip(t *testing.T) {
	in := []byte(`{"jsonrpc":"2.0","id":7,"method":"nope"}`)
	obj, ok, _ := UnpackJSON(in, PackText)
	if !ok {
		t.Fatalf("expected valid object")
	}
	if obj[FieldMethod] != "nope" {
		t.Errorf("expected method 'nope', got %v", obj[FieldMethod])
	}
}

func TestPackValueMsgPackRoundTrip(t *testing.T) {
	req := Request{JSONRPC: RPCVersion, ID: float64(1), Method: "GET_COMMIT"}
	b, err := PackValue(req, PackMsgPack)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	v, err := Unpack(b, PackMsgPack)
	if err != nil {
		t.Fatalf("unpack failed: %v", err)
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object, got %T", v)
	}
	if obj[FieldMethod] != "GET_COMMIT" {
		t.Errorf("expected method GET_COMMIT, got %v", obj[FieldMethod])
	}
}

func TestIsSigned(t *testing.T) {
	signed := map[string]interface{}{"sig": []byte{1}, "req": map[string]interface{}{}}
	if !IsSigned(signed) {
		t.Errorf("expected signed envelope to be detected")
	}
	unsigned := map[string]interface{}{"jsonrpc": "2.0"}
	if IsSigned(unsigned) {
		t.Errorf("expected unsigned envelope not to be detected")
	}
}
