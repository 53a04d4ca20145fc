package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	respondx "github.com/kasuwahq/support-agent/agent/respond"
)

// ComposeResponse assembles the fact bundle and asks the prose oracle to
// render it. The oracle is best-effort: any error or timeout falls back to a
// deterministic rendering within the same turn.
func ComposeResponse(ctx context.Context, in *GraphState, oracle contractx.ResponseOracle) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	switch {
	case !in.InScope:
		in.Facts = respondx.ScopeRejected(in.Sentiment)
	case in.TurnErr != nil:
		in.Facts = respondx.Failure(in.Intent, in.TurnErr, in.Sentiment)
	case in.CommerceFacts != nil:
		in.Facts = respondx.Commerce(in.Intent, in.CommerceFacts, in.Sentiment)
	default:
		in.Facts = respondx.Rows(in.Intent, in.Rows, in.Sentiment)
	}

	in.Reply = renderFacts(in.Facts)
	if oracle != nil {
		if reply, err := oracle.Compose(ctx, in.Facts); err == nil {
			in.Reply = reply
		} else {
			log.Warn().Err(err).Msg("response oracle unavailable, deterministic rendering")
		}
	}
	return in, nil
}

// renderFacts is the oracle-free rendering: stable, compact, and complete.
func renderFacts(facts contractx.ResponseFacts) string {
	payload, err := json.Marshal(facts.Facts)
	if err != nil {
		payload = []byte("{}")
	}
	if facts.ErrorKind != "" {
		return fmt.Sprintf("[%s] %s %s", facts.ErrorKind, facts.Intent, payload)
	}
	return fmt.Sprintf("%s %s", facts.Intent, payload)
}

// AppendContext records the turn for continuity. Best-effort and append-only;
// a failure is logged, never surfaced.
func AppendContext(ctx context.Context, in *GraphState, store contractx.ContextStore) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if !in.InScope || in.IdentityKey == "" {
		return in, nil
	}

	entry := contractx.ContextEntry{
		Timestamp:     in.Now,
		Intent:        in.Intent,
		Entities:      in.Entities,
		ResultSummary: summarizeTurn(in),
		LastProduct:   lastProduct(in),
	}
	if err := store.Append(ctx, in.IdentityKey, entry); err != nil {
		log.Warn().Err(err).Msg("context append failed")
	}
	return in, nil
}

func summarizeTurn(in *GraphState) string {
	if in.Facts.ErrorKind != "" {
		return in.Facts.ErrorKind
	}
	if in.CommerceFacts != nil {
		if id, ok := in.CommerceFacts["order_id"].(string); ok {
			return "order " + id
		}
		if in.Intent == contractx.IntentCartView {
			return "cart viewed"
		}
		return "cart updated"
	}
	return fmt.Sprintf("%d rows", len(in.Rows))
}

func lastProduct(in *GraphState) string {
	if in.CommerceFacts != nil {
		if name, ok := in.CommerceFacts["product"].(string); ok {
			return name
		}
	}
	if name := respondx.LastProductName(in.Rows); name != "" {
		return name
	}
	// Carry the previous turn's product forward so "add it to cart" keeps
	// working across unrelated turns.
	for i := len(in.History) - 1; i >= 0; i-- {
		if in.History[i].LastProduct != "" {
			return in.History[i].LastProduct
		}
	}
	return ""
}

// FinalizeResult turns the state into the upward-facing result.
func FinalizeResult(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	return contractx.Result{
		Success: in.InScope && in.TurnErr == nil,
		Reply:   in.Reply,
		Facts:   in.Facts,
		Intent:  in.Intent,
		Diagnostics: contractx.Diagnostics{
			Intent:       in.Intent,
			FallbackUsed: in.FallbackUsed,
			Retries:      in.Retries,
			RowCount:     len(in.Rows),
			Elapsed:      time.Since(in.Start),
		},
	}, nil
}
