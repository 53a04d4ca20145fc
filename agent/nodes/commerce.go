package nodes

import (
	"context"
	"fmt"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

// CommerceEngine is the node-facing view of the commerce engine.
type CommerceEngine interface {
	AddToCart(ctx context.Context, id contractx.Identity, sessionID string, entities contractx.EntityBag, history []contractx.ContextEntry) (map[string]any, error)
	ViewCart(ctx context.Context, id contractx.Identity, sessionID string) (map[string]any, error)
	Checkout(ctx context.Context, id contractx.Identity, sessionID string, entities contractx.EntityBag) (map[string]any, error)
}

// RunCommerce dispatches shopping intents to the engine. Failures are
// taxonomy errors carried to composition, not pipeline aborts.
func RunCommerce(ctx context.Context, in *GraphState, engine CommerceEngine) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	var (
		facts map[string]any
		err   error
	)
	switch in.Intent {
	case contractx.IntentShoppingCartAdd:
		facts, err = engine.AddToCart(ctx, in.Identity, in.Session.SessionID, in.Entities, in.History)
	case contractx.IntentCartView:
		facts, err = engine.ViewCart(ctx, in.Identity, in.Session.SessionID)
	case contractx.IntentCheckout:
		facts, err = engine.Checkout(ctx, in.Identity, in.Session.SessionID, in.Entities)
	default:
		return nil, fmt.Errorf("%w: intent %s is not a commerce action", contractx.ErrValidation, in.Intent)
	}

	if err != nil {
		in.TurnErr = err
		return in, nil
	}
	in.CommerceFacts = facts
	return in, nil
}
