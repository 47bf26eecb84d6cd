package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// EventType represents the type of audit event
type EventType string

const (
	EventTypeDecision       EventType = "decision"
	EventTypePolicyReload   EventType = "policy_reload"
	EventTypeSystemStartup  EventType = "system_startup"
	EventTypeSystemShutdown EventType = "system_shutdown"
)

// Event is one line of the audit trail
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	EventID   string                 `json:"event_id"`
	RequestID string                 `json:"request_id,omitempty"`
	Decision  *DecisionRecord        `json:"decision,omitempty"`
	Reload    *ReloadRecord          `json:"reload,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	PrevHash  string                 `json:"prev_hash,omitempty"`
	Hash      string                 `json:"hash,omitempty"`
}

// DecisionRecord describes one engine decision
type DecisionRecord struct {
	DecisionID  string                 `json:"decision_id"`
	RequestKey  string                 `json:"request_key"`
	RootVersion string                 `json:"root_version,omitempty"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	Value       types.Evaluation       `json:"value"`
	Obligations []string               `json:"obligations,omitempty"`
	Advice      []string               `json:"advice,omitempty"`
	DurationUs  float64                `json:"duration_us"`
	CacheHit    bool                   `json:"cache_hit"`
}

// ReloadRecord describes one policy reload
type ReloadRecord struct {
	Documents    []string `json:"documents,omitempty"`
	StoreVersion uint64   `json:"store_version"`
	Error        string   `json:"error,omitempty"`
}

func newEvent(ctx context.Context, eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		EventID:   generateEventID(),
		RequestID: RequestIDFromContext(ctx),
	}
}

func newDecisionRecord(req types.Request, d *types.Decision, rootVersion string, withAttributes bool) *DecisionRecord {
	rec := &DecisionRecord{
		DecisionID:  d.ID,
		RequestKey:  d.RequestKey,
		RootVersion: rootVersion,
		Value:       d.Result.Value,
		DurationUs:  d.DurationUs,
		CacheHit:    d.CacheHit,
	}
	if withAttributes {
		rec.Attributes = req.Attributes()
	}
	for _, a := range d.Result.Obligations {
		rec.Obligations = append(rec.Obligations, a.ID)
	}
	for _, a := range d.Result.Advice {
		rec.Advice = append(rec.Advice, a.ID)
	}
	return rec
}

func generateEventID() string {
	return "evt-" + uuid.NewString()
}

type requestIDKey struct{}

// WithRequestID returns a context carrying a caller supplied request ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by WithRequestID
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
