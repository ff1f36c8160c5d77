package wire

import (
	"encoding/json"
	"testing"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte("sock-id"), []byte(`{"msg_id":"1","msg_type":"stream"}`), []byte(`{}`), []byte(`{}`), []byte(`{"name":"stdout","text":"hi"}`))
	f.Add([]byte{}, []byte(`{}`), []byte(`{}`), []byte(`{}`), []byte(`{}`))
	f.Add([]byte("x"), []byte(`invalid json`), []byte(`{}`), []byte(`{}`), []byte(`{}`))

	f.Fuzz(func(t *testing.T, identity, header, parent, metadata, content []byte) {
		frames := [][]byte{identity, delimiter, []byte(""), header, parent, metadata, content}
		var s Signer // unsigned
		msg, err := Decode(frames, s)
		if err != nil {
			return // malformed input is fine, panics are bugs
		}
		// Anything that decodes must re-encode.
		if _, err := Encode(msg, s); err != nil {
			t.Fatalf("encode failed after successful decode: %v", err)
		}
	})
}

func FuzzRoundTripSigned(f *testing.F) {
	f.Add("msg-1", "execute_request", `{"code":"1+1"}`)
	f.Add("", "", `{}`)
	f.Add("id with spaces", "stream", `{"text":"special chars: !@#$%^&*()"}`)

	f.Fuzz(func(t *testing.T, msgID, msgType, content string) {
		if !json.Valid([]byte(content)) {
			return
		}
		s, err := NewSigner(SchemeSHA256, []byte("fuzz-key"))
		if err != nil {
			t.Fatal(err)
		}
		msg := &Message{
			Header:  Header{MsgID: msgID, MsgType: msgType, Version: "5.3"},
			Content: []byte(content),
		}
		frames, err := Encode(msg, s)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(frames, s)
		if err != nil {
			t.Fatalf("decode failed for encoded message: %v", err)
		}
		if got.Header.MsgID != msgID || got.Header.MsgType != msgType {
			t.Errorf("header mismatch: got %q/%q, want %q/%q",
				got.Header.MsgID, got.Header.MsgType, msgID, msgType)
		}
	})
}
