package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestBehaviorSession_AppendAfterFinalize(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewBehaviorSession("s1", start, DeviceContext{DeviceClass: DeviceDesktop})

	ev := RawInteractionEvent{Kind: EventPointerMove, Timestamp: start, Pointer: &Point{X: 1, Y: 2}}
	if err := s.Append(ev); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Finalize(start.Add(time.Second)); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if err := s.Append(ev); !errors.Is(err, ErrSessionFinalized) {
		t.Errorf("Append() after finalize error = %v, want ErrSessionFinalized", err)
	}
	if err := s.Finalize(start); !errors.Is(err, ErrSessionFinalized) {
		t.Errorf("second Finalize() error = %v, want ErrSessionFinalized", err)
	}
	if got := s.EventCount(EventPointerMove); got != 1 {
		t.Errorf("EventCount() = %d, want 1", got)
	}
}

func TestBehaviorSession_EventsIsCopy(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewBehaviorSession("s1", start, DeviceContext{})
	_ = s.Append(RawInteractionEvent{Kind: EventKeyDown, Timestamp: start, Key: &KeyPayload{Key: "a"}})

	evs := s.Events(EventKeyDown)
	evs[0].Key = &KeyPayload{Key: "z"}
	if got := s.Events(EventKeyDown)[0].Key.Key; got != "a" {
		t.Errorf("stored event mutated through copy: key = %q", got)
	}
}

func TestRawInteractionEvent_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		ev      RawInteractionEvent
		wantErr bool
	}{
		{"pointer ok", RawInteractionEvent{Kind: EventPointerMove, Timestamp: now, Pointer: &Point{}}, false},
		{"pointer missing payload", RawInteractionEvent{Kind: EventPointerMove, Timestamp: now}, true},
		{"key without identity", RawInteractionEvent{Kind: EventKeyUp, Timestamp: now, Key: &KeyPayload{}}, true},
		{"unknown kind", RawInteractionEvent{Kind: "wheel", Timestamp: now}, true},
		{"missing timestamp", RawInteractionEvent{Kind: EventScroll, Scroll: &ScrollPayload{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ev.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpt_JSON(t *testing.T) {
	type payload struct {
		Speed Opt[float64] `json:"speed"`
	}

	out, err := json.Marshal(payload{})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"speed":null}` {
		t.Errorf("absent Opt encoded as %s", out)
	}

	out, _ = json.Marshal(payload{Speed: Some(0.0)})
	if string(out) != `{"speed":0}` {
		t.Errorf("present zero encoded as %s", out)
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"speed":null}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Speed.Present() {
		t.Error("null decoded as present")
	}
	if err := json.Unmarshal([]byte(`{"speed":1.5}`), &p); err != nil {
		t.Fatal(err)
	}
	if v, ok := p.Speed.Get(); !ok || v != 1.5 {
		t.Errorf("Get() = %v, %v", v, ok)
	}
}

func TestVerificationLog_VerdictLabel(t *testing.T) {
	cases := map[string]Opt[bool]{"unknown": None[bool](), "bot": Some(true), "human": Some(false)}
	for want, v := range cases {
		l := &VerificationLog{IsBot: v}
		if got := l.VerdictLabel(); got != want {
			t.Errorf("VerdictLabel() = %q, want %q", got, want)
		}
		if !(LogFilter{}).Matches(l) {
			t.Error("zero filter should match")
		}
	}
	if (LogFilter{Verdict: VerdictBot}).Matches(&VerificationLog{IsBot: None[bool]()}) {
		t.Error("bot filter matched unknown verdict")
	}
}
