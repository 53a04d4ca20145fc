package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/kasuwahq/support-agent/agent/nodes"
)

func (o *Orchestrator) compileHandleUtteranceGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("scope_guard",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ScopeGuard(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node scope_guard: %w", err)
	}

	if err := graph.AddLambdaNode("load_context",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadContext(ctx, in, o.contexts)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_context: %w", err)
	}

	if err := graph.AddLambdaNode("extract_and_classify",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExtractAndClassify(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node extract_and_classify: %w", err)
	}

	if err := graph.AddLambdaNode("run_commerce",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RunCommerce(ctx, in, o.engine)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_commerce: %w", err)
	}

	if err := graph.AddLambdaNode("run_query",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RunQuery(ctx, in, o.resolver, o.executor)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_query: %w", err)
	}

	if err := graph.AddLambdaNode("compose_response",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ComposeResponse(ctx, in, o.prose)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node compose_response: %w", err)
	}

	if err := graph.AddLambdaNode("append_context",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AppendContext(ctx, in, o.contexts)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node append_context: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_result",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeResult(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_result: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "scope_guard"},
		{"load_context", "extract_and_classify"},
		{"run_commerce", "compose_response"},
		{"run_query", "compose_response"},
		{"compose_response", "append_context"},
		{"append_context", "finalize_result"},
		{"finalize_result", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	// Off-domain turns skip extraction and data access entirely.
	if err := graph.AddBranch("scope_guard", compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if !in.InScope {
				return "compose_response", nil
			}
			return "load_context", nil
		},
		map[string]bool{"compose_response": true, "load_context": true},
	)); err != nil {
		return nil, fmt.Errorf("add branch scope_guard: %w", err)
	}

	// Shopping intents mutate state through the engine; everything else is a
	// read through the resolver/executor pair.
	if err := graph.AddBranch("extract_and_classify", compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in.Intent.IsCommerce() {
				return "run_commerce", nil
			}
			return "run_query", nil
		},
		map[string]bool{"run_commerce": true, "run_query": true},
	)); err != nil {
		return nil, fmt.Errorf("add branch extract_and_classify: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_utterance"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
