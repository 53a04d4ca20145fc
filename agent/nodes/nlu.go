package nodes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	identityx "github.com/kasuwahq/support-agent/agent/identity"
	nlux "github.com/kasuwahq/support-agent/agent/nlu"
)

// ScopeGuard runs before anything else; off-domain turns skip straight to
// response composition with a redirect fact.
func ScopeGuard(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	in.InScope = nlux.CheckScope(in.Utterance)
	in.Sentiment = nlux.ClassifySentiment(in.Utterance)
	if !in.InScope {
		in.TurnErr = contractx.ErrScopeRejected
	}
	return in, nil
}

// LoadContext reads recent turns for this identity. Best-effort: a failed
// read degrades continuity, never the turn.
func LoadContext(ctx context.Context, in *GraphState, store contractx.ContextStore) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	// Identity must be resolved before the context key is derived, so a
	// guest on a shared channel never reads another customer's history.
	in.Identity = identityx.Resolve(in.Session)
	in.IdentityKey = identityx.Key(in.Identity, in.Session.SessionID)

	history, err := store.Recent(ctx, in.IdentityKey, 0)
	if err != nil {
		log.Warn().Err(err).Msg("conversation context unavailable")
		history = nil
	}
	in.History = history
	return in, nil
}

// ExtractAndClassify parses entities (with context inheritance for the order
// reference only) and picks the intent.
func ExtractAndClassify(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Entities = nlux.Extract(in.Utterance, in.History)
	in.Intent = nlux.Classify(in.Utterance, in.Entities)

	// The verified session remains the only identity source. Re-resolving
	// here makes that explicit even if extraction ever grew an id field.
	in.Identity = identityx.Resolve(in.Session)
	return in, nil
}
