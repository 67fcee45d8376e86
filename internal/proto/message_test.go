package proto

import (
	"errors"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	req := NewRequest(TypePull, 0xabcdef, "")
	if req.ID != "0000000000abcdef" {
		t.Fatalf("unexpected id %q", req.ID)
	}
	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, err := got.WalletID()
	if err != nil || id != 0xabcdef {
		t.Fatalf("expected id 0xabcdef, got %x (%v)", id, err)
	}
}

func TestDecodeRequestRejects(t *testing.T) {
	cases := map[string]string{
		"json":       `{`,
		"request id": `{"type":"pull","request_id":"nope","id":"0000000000000001"}`,
		"type":       `{"type":"delete","request_id":"7f1c1b8e-4a8e-4b7e-9f3a-2f8c5e9d0a11"}`,
		"pull id":    `{"type":"pull","request_id":"7f1c1b8e-4a8e-4b7e-9f3a-2f8c5e9d0a11","id":"1"}`,
		"push body":  `{"type":"push","request_id":"7f1c1b8e-4a8e-4b7e-9f3a-2f8c5e9d0a11","id":"0000000000000001"}`,
	}
	for name, raw := range cases {
		if _, err := DecodeRequest([]byte(raw)); !errors.Is(err, ErrBadMessage) {
			t.Fatalf("%s: expected ErrBadMessage, got %v", name, err)
		}
	}
}

func TestDecodeResponseMatchesRequest(t *testing.T) {
	req := NewRequest(TypeScore, 0, "")
	ok, _ := EncodeResponse(Response{Type: TypeScoreOK, RequestID: req.RequestID, Suffixes: []string{"a"}})
	resp, err := DecodeResponse(ok, req)
	if err != nil || resp.Err() != nil || len(resp.Suffixes) != 1 {
		t.Fatalf("unexpected response %+v err=%v", resp, err)
	}

	other, _ := EncodeResponse(Response{Type: TypeScoreOK, RequestID: "other"})
	if _, err := DecodeResponse(other, req); !errors.Is(err, ErrBadMessage) {
		t.Fatalf("expected request id mismatch, got %v", err)
	}
	wrong, _ := EncodeResponse(Response{Type: TypePullOK, RequestID: req.RequestID})
	if _, err := DecodeResponse(wrong, req); !errors.Is(err, ErrBadMessage) {
		t.Fatalf("expected type mismatch, got %v", err)
	}

	failed, _ := EncodeResponse(ErrorResponse(req.RequestID, CodeNotFound, "no such wallet"))
	resp, err = DecodeResponse(failed, req)
	if err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	var re *RemoteError
	if !errors.As(resp.Err(), &re) || re.Code != CodeNotFound {
		t.Fatalf("expected not_found remote error, got %v", resp.Err())
	}
}
