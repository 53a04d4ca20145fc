package contract

import "context"

// QueryOracle generates a SQL query from an utterance. Implementations must
// respect ctx deadlines; callers fall back to templates on any error.
type QueryOracle interface {
	GenerateQuery(ctx context.Context, utterance string, intent Intent, entities EntityBag, schema string) (string, error)
}

// ResponseOracle renders a fact bundle into prose. Best-effort: callers must
// tolerate errors and degrade to a deterministic rendering.
type ResponseOracle interface {
	Compose(ctx context.Context, facts ResponseFacts) (string, error)
}

// ContextStore is the bounded, TTL'd per-identity conversation memory.
type ContextStore interface {
	Recent(ctx context.Context, identityKey string, limit int) ([]ContextEntry, error)
	Append(ctx context.Context, identityKey string, entry ContextEntry) error
}
