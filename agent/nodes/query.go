package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	queryx "github.com/kasuwahq/support-agent/agent/query"
)

// QueryResolver and QueryExecutor are the node-facing views of the query
// package, kept narrow so tests can fake them.
type QueryResolver interface {
	Resolve(ctx context.Context, utterance string, intent contractx.Intent, entities contractx.EntityBag, id contractx.Identity) (contractx.ResolvedQuery, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, q contractx.ResolvedQuery) ([]map[string]any, int, error)
}

// RunQuery drives the read path: resolve (oracle first, template fallback),
// execute with bounded transient retry, and on an invalid oracle query make
// exactly one template attempt. Errors land in TurnErr so composition still
// produces a coherent bundle.
func RunQuery(ctx context.Context, in *GraphState, resolver QueryResolver, executor QueryExecutor) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.Intent == contractx.IntentGeneral {
		// Nothing to look up; the composer answers from the intent alone.
		return in, nil
	}

	resolved, err := resolver.Resolve(ctx, in.Utterance, in.Intent, in.Entities, in.Identity)
	if err != nil {
		in.TurnErr = err
		return in, nil
	}
	in.FallbackUsed = resolved.Source == contractx.QuerySourceTemplate

	rows, retries, err := executor.Execute(ctx, resolved)
	in.Retries = retries

	if err != nil && errors.Is(err, contractx.ErrQueryInvalid) && resolved.Source == contractx.QuerySourceOracle {
		log.Warn().Err(err).Str("intent", string(in.Intent)).Msg("oracle query invalid, template attempt")
		fallback, ferr := queryx.FallbackFor(in.Intent, in.Entities, in.Identity)
		if ferr != nil {
			in.TurnErr = ferr
			return in, nil
		}
		in.FallbackUsed = true
		rows, retries, err = executor.Execute(ctx, fallback)
		in.Retries += retries
	}

	if err != nil {
		in.TurnErr = err
		return in, nil
	}
	in.Rows = rows
	return in, nil
}
