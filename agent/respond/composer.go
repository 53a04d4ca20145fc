// Package respond assembles fact bundles for the external prose oracle. The
// bundle governs what must be conveyed, never how it is worded.
package respond

import (
	"errors"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	nlux "github.com/kasuwahq/support-agent/agent/nlu"
)

const maxSurfacedRows = 10

// Rows builds the fact bundle for a successful data query.
func Rows(intent contractx.Intent, rows []map[string]any, sentiment contractx.Sentiment) contractx.ResponseFacts {
	surfaced := rows
	if len(surfaced) > maxSurfacedRows {
		surfaced = surfaced[:maxSurfacedRows]
	}

	facts := map[string]any{
		"row_count": len(rows),
		"rows":      surfaced,
	}
	if len(rows) == 0 {
		facts["empty_result"] = true
	}

	return contractx.ResponseFacts{
		Intent:          intent,
		Facts:           facts,
		Sentiment:       sentiment,
		EmpathyRequired: nlux.EmpathyRequired(sentiment),
	}
}

// Commerce builds the bundle for cart/checkout outcomes.
func Commerce(intent contractx.Intent, facts map[string]any, sentiment contractx.Sentiment) contractx.ResponseFacts {
	if facts == nil {
		facts = map[string]any{}
	}
	return contractx.ResponseFacts{
		Intent:          intent,
		Facts:           facts,
		Sentiment:       sentiment,
		EmpathyRequired: nlux.EmpathyRequired(sentiment),
	}
}

// ScopeRejected carries the redirect fact for off-domain utterances.
func ScopeRejected(sentiment contractx.Sentiment) contractx.ResponseFacts {
	return contractx.ResponseFacts{
		Intent: contractx.IntentGeneral,
		Facts: map[string]any{
			"redirect": "support topics only: orders, payments, products, account",
		},
		Sentiment: sentiment,
		ErrorKind: "scope_rejected",
	}
}

// Failure maps the error taxonomy to a structured bundle so every error path
// still yields a coherent message. Raw internals never reach the chat surface.
func Failure(intent contractx.Intent, err error, sentiment contractx.Sentiment) contractx.ResponseFacts {
	kind, fact := classify(err)
	return contractx.ResponseFacts{
		Intent:          intent,
		Facts:           map[string]any{"cause": fact},
		Sentiment:       sentiment,
		EmpathyRequired: true,
		ErrorKind:       kind,
	}
}

func classify(err error) (kind string, fact string) {
	switch {
	case errors.Is(err, contractx.ErrIdentityUnverified):
		return "identity_unverified", "authenticate or supply an order reference"
	case errors.Is(err, contractx.ErrProductAmbiguous):
		return "product_ambiguous", "name the product to add"
	case errors.Is(err, contractx.ErrCartEmpty):
		return "cart_empty", "the cart has no items"
	case errors.Is(err, contractx.ErrStockInsufficient):
		return "stock_insufficient", "requested quantity exceeds available stock; cart kept for adjustment"
	case errors.Is(err, contractx.ErrOrderIntegrity):
		return "order_integrity", "order could not be created consistently; nothing was charged"
	case errors.Is(err, contractx.ErrExtractionAmbiguous):
		return "extraction_ambiguous", "please clarify the request"
	case errors.Is(err, contractx.ErrServiceDegraded), errors.Is(err, contractx.ErrQueryTransient):
		return "service_degraded", "data is temporarily unavailable, try again shortly"
	case errors.Is(err, contractx.ErrQueryInvalid), errors.Is(err, contractx.ErrQueryGeneration):
		return "query_failed", "could not answer that from the catalog right now"
	default:
		return "internal", "something went wrong handling that request"
	}
}

// LastProductName pulls the most recently surfaced product name out of result
// rows for conversation-context continuity ("add it to cart").
func LastProductName(rows []map[string]any) string {
	if len(rows) == 0 {
		return ""
	}
	if name, ok := rows[0]["name"].(string); ok {
		return name
	}
	if name, ok := rows[0]["product"].(string); ok {
		return name
	}
	return ""
}
