// Package orchestrator wires the turn pipeline: one utterance in, one
// fact-bundle result out.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	nodex "github.com/kasuwahq/support-agent/agent/nodes"
)

var (
	ErrInvalidUtterance = nodex.ErrInvalidUtterance
	ErrInvalidSession   = nodex.ErrInvalidSession
)

type Orchestrator struct {
	contexts contractx.ContextStore
	resolver nodex.QueryResolver
	executor nodex.QueryExecutor
	engine   nodex.CommerceEngine
	prose    contractx.ResponseOracle

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

// New builds and compiles the pipeline. The prose oracle may be nil; every
// other collaborator is required.
func New(
	contexts contractx.ContextStore,
	resolver nodex.QueryResolver,
	executor nodex.QueryExecutor,
	engine nodex.CommerceEngine,
	prose contractx.ResponseOracle,
) (*Orchestrator, error) {
	if contexts == nil {
		return nil, errors.New("context store is required")
	}
	if resolver == nil {
		return nil, errors.New("query resolver is required")
	}
	if executor == nil {
		return nil, errors.New("query executor is required")
	}
	if engine == nil {
		return nil, errors.New("commerce engine is required")
	}

	o := &Orchestrator{
		contexts: contexts,
		resolver: resolver,
		executor: executor,
		engine:   engine,
		prose:    prose,
		now:      time.Now,
	}

	graphRunner, err := o.compileHandleUtteranceGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner
	return o, nil
}

// HandleUtterance is the single upward-facing entry point consumed by channel
// adapters.
func (o *Orchestrator) HandleUtterance(
	ctx context.Context,
	utterance string,
	session contractx.SessionContext,
) (contractx.Result, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		Utterance: utterance,
		Session:   session,
	})
	if err != nil {
		return contractx.Result{}, err
	}
	return out, nil
}
