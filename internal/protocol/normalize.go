package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mehanisik/crypto-predict-sub000/internal/model"
)

// unifiedMessage is the newer wire schema. Event carries the canonical stage
// name directly.
type unifiedMessage struct {
	SessionID string          `json:"session_id"`
	Phase     string          `json:"phase"`
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Progress  *float64        `json:"progress"`
	Data      json.RawMessage `json:"data"`
}

// legacyMessage is the older wire schema. The stage name lives in Type with
// DataType as a fallback, and fields may be nested one level under Data.
type legacyMessage struct {
	Type      string          `json:"type"`
	DataType  string          `json:"data_type"`
	SessionID string          `json:"session_id"`
	Progress  *float64        `json:"progress"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
}

// Normalize collapses either wire schema into a canonical update. The update
// is always usable; a non-nil error marks frames that could not be fully
// parsed and should be counted as protocol errors.
func Normalize(data []byte, receivedAt time.Time) (model.Update, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return model.Update{
			Stage:     model.StageUnknown,
			Timestamp: receivedAt,
			Payload:   map[string]any{"raw": string(data)},
		}, fmt.Errorf("malformed frame: %w", err)
	}

	_, hasPhase := probe["phase"]
	_, hasEvent := probe["event"]
	if hasPhase && hasEvent {
		return normalizeUnified(data, receivedAt)
	}
	return normalizeLegacy(data, receivedAt, probe)
}

func normalizeUnified(data []byte, receivedAt time.Time) (model.Update, error) {
	var msg unifiedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Update{
			Stage:     model.StageUnknown,
			Timestamp: receivedAt,
			Payload:   map[string]any{"raw": string(data)},
		}, fmt.Errorf("malformed unified frame: %w", err)
	}

	stage := model.CanonicalStage(msg.Event)
	payload := parsePayload(msg.Data)

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = stringValue(payload, "session_id")
	}

	return model.Update{
		Stage:     stage,
		SessionID: sessionID,
		Timestamp: parseTimestamp(msg.Timestamp, receivedAt),
		Progress:  resolveProgress(msg.Progress, payload),
		Payload:   payload,
		Terminal:  stage == model.StageTrainingCompleted || stage == model.StageError,
	}, nil
}

func normalizeLegacy(data []byte, receivedAt time.Time, probe map[string]json.RawMessage) (model.Update, error) {
	var msg legacyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Update{
			Stage:     model.StageUnknown,
			Timestamp: receivedAt,
			Payload:   map[string]any{"raw": string(data)},
		}, fmt.Errorf("malformed legacy frame: %w", err)
	}

	rawStage := msg.Type
	if rawStage == "" {
		rawStage = msg.DataType
	}
	stage := model.CanonicalStage(rawStage)
	payload := parsePayload(msg.Data)

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = stringValue(payload, "session_id")
	}

	// Message-only frames carry their text into the payload.
	if msg.Message != "" {
		if _, ok := payload["message"]; !ok {
			payload["message"] = msg.Message
		}
	}

	var err error
	_, hasType := probe["type"]
	_, hasDataType := probe["data_type"]
	if !hasType && !hasDataType {
		err = fmt.Errorf("frame has no stage field")
	}

	return model.Update{
		Stage:     stage,
		SessionID: sessionID,
		Timestamp: receivedAt,
		Progress:  resolveProgress(msg.Progress, payload),
		Payload:   payload,
		Terminal:  stage == model.StageTrainingCompleted || stage == model.StageError,
	}, err
}

// parsePayload decodes the data object and surfaces metrics and series as
// clean keyed-numeric mappings. Non-object data is ignored.
func parsePayload(raw json.RawMessage) map[string]any {
	payload := make(map[string]any)
	if len(raw) == 0 {
		return payload
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}

	if v, ok := payload["metrics"]; ok {
		if m := numericMap(v); m != nil {
			payload["metrics"] = m
		} else {
			delete(payload, "metrics")
		}
	}
	if v, ok := payload["series"]; ok {
		if m := numericSeriesMap(v); m != nil {
			payload["series"] = m
		} else {
			delete(payload, "series")
		}
	}

	return payload
}

// numericMap coerces v into map[string]float64. Arrays masquerading as
// objects and non-numeric values are rejected.
func numericMap(v any) map[string]float64 {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(obj))
	for k, raw := range obj {
		if f, ok := raw.(float64); ok {
			out[k] = f
		}
	}
	return out
}

// numericSeriesMap coerces v into map[string][]float64.
func numericSeriesMap(v any) map[string][]float64 {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]float64, len(obj))
	for k, raw := range obj {
		arr, ok := raw.([]any)
		if !ok {
			continue
		}
		vals := make([]float64, 0, len(arr))
		for _, e := range arr {
			if f, ok := e.(float64); ok {
				vals = append(vals, f)
			}
		}
		out[k] = vals
	}
	return out
}

// resolveProgress prefers the top-level progress over one embedded in the
// payload, clamped to [0,100].
func resolveProgress(top *float64, payload map[string]any) *float64 {
	var p float64
	switch {
	case top != nil:
		p = *top
	default:
		f, ok := payload["progress"].(float64)
		if !ok {
			return nil
		}
		p = f
	}

	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return &p
}

func parseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return fallback
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
