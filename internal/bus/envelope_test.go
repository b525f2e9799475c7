package bus

import (
	"encoding/json"
	"testing"
	"time"
)

type samplePayload struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
}

func TestEnvelopeRoundtrip(t *testing.T) {
	env, err := NewEnvelope("files.upload.requested", "file-svc", samplePayload{
		JobID:  "j-1",
		UserID: "u-1",
	})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}

	if env.EventID == "" {
		t.Error("event id is empty")
	}
	if env.EventType != "files.upload.requested" || env.Source != "file-svc" {
		t.Errorf("envelope header = %+v", env)
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Errorf("timestamp is not RFC3339: %q", env.Timestamp)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Envelope
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.EventID != env.EventID || back.EventType != env.EventType ||
		back.Timestamp != env.Timestamp || back.Source != env.Source {
		t.Errorf("roundtrip mismatch: %+v vs %+v", back, env)
	}

	var payload samplePayload
	if err := back.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.JobID != "j-1" || payload.UserID != "u-1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEnvelopeToleratesUnknownFields(t *testing.T) {
	raw := []byte(`{
		"event_id": "e-1",
		"event_type": "files.upload.completed",
		"timestamp": "2025-01-01T00:00:00Z",
		"source": "file-svc",
		"payload": {"job_id": "j-1", "some_future_field": 42},
		"schema_version": 2
	}`)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal with unknown fields: %v", err)
	}
	if env.EventID != "e-1" {
		t.Errorf("event id = %q", env.EventID)
	}

	var payload samplePayload
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.JobID != "j-1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEnvelopeEventIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		env, err := NewEnvelope("t", "s", samplePayload{})
		if err != nil {
			t.Fatalf("new envelope: %v", err)
		}
		if seen[env.EventID] {
			t.Fatalf("duplicate event id %q", env.EventID)
		}
		seen[env.EventID] = true
	}
}
