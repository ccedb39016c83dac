package chat

import (
	"encoding/json"
	"errors"
	"testing"

	errs "SProject/tools/errs"
)

func TestParseFrameJSON(t *testing.T) {
	raw := []byte(`{"type":"send","payload":{"conversationType":"class","conversationId":"7a","text":"hi"}}`)
	f, err := ParseFrameJSON(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != FrameSend {
		t.Fatalf("type: %s", f.Type)
	}
}

func TestParseFrameRejectsUnknownType(t *testing.T) {
	for _, raw := range []string{
		`{"type":"upgrade_me"}`,
		`{"type":"message.new"}`, // 出站类型不允许从客户端进来
		`{"payload":{}}`,
		`not json at all`,
	} {
		_, err := ParseFrameJSON([]byte(raw))
		if !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("frame %q: want validation error, got %v", raw, err)
		}
	}
}

func TestDecodePayload(t *testing.T) {
	f, err := ParseFrameJSON([]byte(`{"type":"subscribe","payload":{"conversationType":"class","conversationId":"7a"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, err := DecodePayload[SubscribePayload](f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ConversationType != "class" || p.ConversationID != "7a" {
		t.Fatalf("payload: %+v", p)
	}
}

func TestDecodePayloadRejectsExtraFields(t *testing.T) {
	f, err := ParseFrameJSON([]byte(`{"type":"subscribe","payload":{"conversationType":"class","conversationId":"7a","admin":true}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := DecodePayload[SubscribePayload](f); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("extra field: want validation error, got %v", err)
	}
}

func TestDecodePayloadRejectsNonObject(t *testing.T) {
	f, err := ParseFrameJSON([]byte(`{"type":"authenticate","payload":"just-a-string"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := DecodePayload[AuthPayload](f); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("non-object payload: want validation error, got %v", err)
	}
}

func TestDecodeSendPayloadWithAttachments(t *testing.T) {
	raw := []byte(`{"type":"send","payload":{
		"conversationType":"group",
		"conversationId":"g1",
		"attachments":[{"url":"https://files/a.pdf","name":"a.pdf","contentType":"application/pdf","size":1024}]
	}}`)
	f, err := ParseFrameJSON(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, err := DecodePayload[SendPayload](f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(p.Attachments) != 1 || p.Attachments[0].URL != "https://files/a.pdf" || p.Attachments[0].Size != 1024 {
		t.Fatalf("attachments: %+v", p.Attachments)
	}
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	b := EncodeFrame(BuildSubAck("c1", "class", "7a", true))
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Type != FrameSubAck || f.ConnID != "c1" || f.Ts == 0 {
		t.Fatalf("frame: %+v", f)
	}
	payload, ok := f.Payload.(map[string]any)
	if !ok || payload["subscribed"] != true {
		t.Fatalf("payload: %+v", f.Payload)
	}
}
