package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mehanisik/crypto-predict-sub000/internal/model"
)

var receivedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNormalize_Unified(t *testing.T) {
	data := []byte(`{"session_id":"s1","phase":"train","event":"training_progress","timestamp":"2025-06-01T11:59:58Z","progress":42,"data":{"epoch":3,"total_epochs":10}}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if u.Stage != model.StageTrainingProgress {
		t.Errorf("Stage = %q, want training_progress", u.Stage)
	}
	if u.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", u.SessionID)
	}
	if u.ProgressValue() != 42 {
		t.Errorf("Progress = %v, want 42", u.ProgressValue())
	}
	if u.Terminal {
		t.Error("Terminal = true, want false")
	}
	want := time.Date(2025, 6, 1, 11, 59, 58, 0, time.UTC)
	if !u.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", u.Timestamp, want)
	}
	if u.Payload["epoch"] != float64(3) {
		t.Errorf("Payload epoch = %v, want 3", u.Payload["epoch"])
	}
}

func TestNormalize_LegacyAliasTerminal(t *testing.T) {
	data := []byte(`{"type":"training_complete","session_id":"s1","data":{"final_accuracy":0.91}}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if u.Stage != model.StageTrainingCompleted {
		t.Errorf("Stage = %q, want training_completed", u.Stage)
	}
	if !u.Terminal {
		t.Error("Terminal = false, want true")
	}
	if u.Payload["final_accuracy"] != 0.91 {
		t.Errorf("Payload final_accuracy = %v", u.Payload["final_accuracy"])
	}
	if !u.Timestamp.Equal(receivedAt) {
		t.Errorf("Timestamp = %v, want receive time", u.Timestamp)
	}
}

func TestNormalize_LegacyDataType(t *testing.T) {
	data := []byte(`{"data_type":"metric_sample","session_id":"s2","data":{"progress":10}}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if u.Stage != model.StageTrainingProgress {
		t.Errorf("Stage = %q, want training_progress", u.Stage)
	}
	if u.ProgressValue() != 10 {
		t.Errorf("Progress = %v, want 10 from payload fallback", u.ProgressValue())
	}
}

func TestNormalize_TopLevelProgressWins(t *testing.T) {
	data := []byte(`{"type":"training_progress","session_id":"s1","progress":60,"data":{"progress":20}}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if u.ProgressValue() != 60 {
		t.Errorf("Progress = %v, want top-level 60", u.ProgressValue())
	}
}

func TestNormalize_SessionIDFromData(t *testing.T) {
	data := []byte(`{"type":"data_fetching","data":{"session_id":"nested"}}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if u.SessionID != "nested" {
		t.Errorf("SessionID = %q, want nested", u.SessionID)
	}
}

func TestNormalize_ProgressClamped(t *testing.T) {
	tests := []struct {
		progress string
		want     float64
	}{
		{"150", 100},
		{"-5", 0},
		{"99.5", 99.5},
	}

	for _, tt := range tests {
		data := []byte(`{"type":"training_progress","session_id":"s1","progress":` + tt.progress + `}`)
		u, err := Normalize(data, receivedAt)
		if err != nil {
			t.Fatalf("Normalize(%s) failed: %v", tt.progress, err)
		}
		if u.ProgressValue() != tt.want {
			t.Errorf("progress %s clamped to %v, want %v", tt.progress, u.ProgressValue(), tt.want)
		}
	}
}

func TestNormalize_MetricsCleaned(t *testing.T) {
	data := []byte(`{"type":"metric_sample","session_id":"s1","data":{"metrics":{"loss":0.5,"acc":0.9,"label":"x"}}}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	metrics, ok := u.Payload["metrics"].(map[string]float64)
	if !ok {
		t.Fatalf("metrics type = %T, want map[string]float64", u.Payload["metrics"])
	}
	if metrics["loss"] != 0.5 || metrics["acc"] != 0.9 {
		t.Errorf("metrics = %v", metrics)
	}
	if _, ok := metrics["label"]; ok {
		t.Error("non-numeric metric value should be dropped")
	}
}

func TestNormalize_MetricsArrayRejected(t *testing.T) {
	data := []byte(`{"type":"metric_sample","session_id":"s1","data":{"metrics":[1,2,3]}}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if _, ok := u.Payload["metrics"]; ok {
		t.Error("array-shaped metrics should be dropped")
	}
}

func TestNormalize_Series(t *testing.T) {
	data := []byte(`{"type":"series","session_id":"s1","data":{"series":{"loss":[0.9,0.5,0.3]}}}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	series, ok := u.Payload["series"].(map[string][]float64)
	if !ok {
		t.Fatalf("series type = %T, want map[string][]float64", u.Payload["series"])
	}
	if len(series["loss"]) != 3 || series["loss"][2] != 0.3 {
		t.Errorf("series = %v", series)
	}
}

func TestNormalize_UnknownShape(t *testing.T) {
	data := []byte(`{"status":"ok"}`)

	u, err := Normalize(data, receivedAt)
	if err == nil {
		t.Error("expected protocol error for shapeless frame")
	}
	if u.Stage != model.StageUnknown {
		t.Errorf("Stage = %q, want unknown", u.Stage)
	}
}

func TestNormalize_MalformedJSON(t *testing.T) {
	data := []byte(`{not json`)

	u, err := Normalize(data, receivedAt)
	if err == nil {
		t.Error("expected error for malformed frame")
	}
	if u.Stage != model.StageUnknown {
		t.Errorf("Stage = %q, want unknown", u.Stage)
	}
	if u.Payload["raw"] != "{not json" {
		t.Errorf("Payload raw = %v", u.Payload["raw"])
	}
	if !u.Timestamp.Equal(receivedAt) {
		t.Errorf("Timestamp = %v, want receive time", u.Timestamp)
	}
}

func TestNormalize_MessageOnlyFrame(t *testing.T) {
	data := []byte(`{"type":"status","session_id":"s1","message":"Joined training room","progress":0}`)

	u, err := Normalize(data, receivedAt)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if u.Stage != model.StageUnknown {
		t.Errorf("Stage = %q, want unknown for status frames", u.Stage)
	}
	if u.Payload["message"] != "Joined training room" {
		t.Errorf("Payload message = %v", u.Payload["message"])
	}
}

func TestOutboundEnvelopes(t *testing.T) {
	tests := []struct {
		env  Envelope
		want string
	}{
		{JoinTraining("abc"), `{"event":"join_training","session_id":"abc"}`},
		{LeaveTraining("abc"), `{"event":"leave_training","session_id":"abc"}`},
		{JoinPrediction("r1"), `{"event":"join_prediction","request_id":"r1"}`},
		{LeavePrediction("r1"), `{"event":"leave_prediction","request_id":"r1"}`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.env)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(data) != tt.want {
			t.Errorf("got %s, want %s", data, tt.want)
		}
	}
}
