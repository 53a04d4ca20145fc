package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
	statex "github.com/kasuwahq/support-agent/agent/state"
)

/* --------------------------------- fakes --------------------------------- */

type fakeResolver struct {
	mu         sync.Mutex
	calls      int
	resolved   contractx.ResolvedQuery
	err        error
	lastID     contractx.Identity
	lastIntent contractx.Intent
}

func (f *fakeResolver) Resolve(
	_ context.Context, _ string, intent contractx.Intent, _ contractx.EntityBag, id contractx.Identity,
) (contractx.ResolvedQuery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastID = id
	f.lastIntent = intent
	return f.resolved, f.err
}

type execResult struct {
	rows    []map[string]any
	retries int
	err     error
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   int
	results []execResult
}

func (f *fakeExecutor) Execute(context.Context, contractx.ResolvedQuery) ([]map[string]any, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, 0, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.rows, r.retries, r.err
}

type fakeEngine struct {
	mu          sync.Mutex
	addCalls    int
	lastHistory []contractx.ContextEntry
	addFacts    map[string]any
	addErr      error
	checkoutErr error
}

func (f *fakeEngine) AddToCart(
	_ context.Context, _ contractx.Identity, _ string, _ contractx.EntityBag, history []contractx.ContextEntry,
) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	f.lastHistory = history
	return f.addFacts, f.addErr
}

func (f *fakeEngine) ViewCart(
	context.Context, contractx.Identity, string,
) (map[string]any, error) {
	return map[string]any{"lines": []map[string]any{}, "total": 0.0}, nil
}

func (f *fakeEngine) Checkout(
	context.Context, contractx.Identity, string, contractx.EntityBag,
) (map[string]any, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return map[string]any{"order_id": "ORD-AB12CD34"}, nil
}

type fakeProse struct {
	reply string
	err   error
}

func (f *fakeProse) Compose(context.Context, contractx.ResponseFacts) (string, error) {
	return f.reply, f.err
}

func newContextStore(t *testing.T) *statex.ConversationStore {
	t.Helper()
	store, err := statex.NewConversationStore(statex.NewMemoryKV())
	if err != nil {
		t.Fatalf("NewConversationStore: %v", err)
	}
	return store
}

var verifiedSession = contractx.SessionContext{
	SessionID:     "s1",
	Authenticated: true,
	CustomerID:    "CUST-1",
}

/* --------------------------------- tests --------------------------------- */

func TestHandleUtteranceRejectsOffDomain(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	executor := &fakeExecutor{}
	engine := &fakeEngine{}
	agent, err := New(newContextStore(t), resolver, executor, engine, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := agent.HandleUtterance(context.Background(), "What's the capital of France?", verifiedSession)
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}

	if result.Success {
		t.Fatal("off-domain turn reported success")
	}
	if result.Facts.ErrorKind != "scope_rejected" {
		t.Fatalf("ErrorKind = %q", result.Facts.ErrorKind)
	}
	if resolver.calls != 0 || executor.calls != 0 || engine.addCalls != 0 {
		t.Fatal("off-domain turn must not touch data or commerce paths")
	}
	if _, ok := result.Facts.Facts["redirect"]; !ok {
		t.Fatal("redirect fact missing")
	}
}

func TestHandleUtteranceGuestOrderLookup(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{err: fmt.Errorf("%w: authenticate", contractx.ErrIdentityUnverified)}
	executor := &fakeExecutor{}
	agent, err := New(newContextStore(t), resolver, executor, &fakeEngine{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	guest := contractx.SessionContext{SessionID: "s-guest"}
	result, err := agent.HandleUtterance(context.Background(), "where is my order?", guest)
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}

	if result.Success {
		t.Fatal("unverified lookup reported success")
	}
	if result.Facts.ErrorKind != "identity_unverified" {
		t.Fatalf("ErrorKind = %q", result.Facts.ErrorKind)
	}
	if executor.calls != 0 {
		t.Fatal("no query may execute without identity")
	}
	if resolver.lastID.Verified() {
		t.Fatal("guest session resolved as verified")
	}
}

func TestHandleUtteranceVerifiedOrderLookup(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		resolved: contractx.ResolvedQuery{SQL: "SELECT 1", Source: contractx.QuerySourceTemplate},
	}
	executor := &fakeExecutor{results: []execResult{{
		rows: []map[string]any{{"id": "ORD-1", "status": "processing"}},
	}}}
	prose := &fakeProse{reply: "Your order ORD-1 is on the way."}

	agent, err := New(newContextStore(t), resolver, executor, &fakeEngine{}, prose)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := agent.HandleUtterance(context.Background(), "where is my order?", verifiedSession)
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}

	if !result.Success {
		t.Fatalf("lookup failed: %+v", result)
	}
	if result.Reply != prose.reply {
		t.Fatalf("reply = %q", result.Reply)
	}
	if result.Intent != contractx.IntentOrderLookup {
		t.Fatalf("intent = %v", result.Intent)
	}
	if !result.Diagnostics.FallbackUsed || result.Diagnostics.RowCount != 1 {
		t.Fatalf("diagnostics = %+v", result.Diagnostics)
	}
	if resolver.lastID != (contractx.Identity{Kind: contractx.IdentityVerified, CustomerID: "CUST-1"}) {
		t.Fatalf("resolver saw identity %+v", resolver.lastID)
	}
}

func TestHandleUtteranceIdentityComesFromSessionOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	contexts := newContextStore(t)
	// Seed this customer's own history with an order reference that belongs to
	// somebody else. It may inherit the reference, never the identity.
	if err := contexts.Append(ctx, "customer:CUST-1", contractx.ContextEntry{
		Intent:   contractx.IntentOrderLookup,
		Entities: contractx.EntityBag{OrderRef: "ORD-OTHER-PERSON"},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	resolver := &fakeResolver{
		resolved: contractx.ResolvedQuery{SQL: "SELECT 1", Source: contractx.QuerySourceTemplate},
	}
	agent, err := New(contexts, resolver, &fakeExecutor{}, &fakeEngine{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := agent.HandleUtterance(ctx, "track my order", verifiedSession); err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}

	want := contractx.Identity{Kind: contractx.IdentityVerified, CustomerID: "CUST-1"}
	if resolver.lastID != want {
		t.Fatalf("identity = %+v, want the session's own %+v", resolver.lastID, want)
	}
}

func TestHandleUtteranceAddItToCartUsesContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	resolver := &fakeResolver{
		resolved: contractx.ResolvedQuery{SQL: "SELECT 1", Source: contractx.QuerySourceTemplate},
	}
	executor := &fakeExecutor{results: []execResult{{
		rows: []map[string]any{{"name": "Infinix Hot 40", "unit_price": 180000}},
	}}}
	engine := &fakeEngine{addFacts: map[string]any{"product": "Infinix Hot 40", "quantity": 1}}

	agent, err := New(newContextStore(t), resolver, executor, engine, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Turn 1: browse surfaces a product and records it in context.
	if _, err := agent.HandleUtterance(ctx, "show me infinix phones", verifiedSession); err != nil {
		t.Fatalf("browse turn: %v", err)
	}

	// Turn 2: the bare reference resolves through conversation context.
	result, err := agent.HandleUtterance(ctx, "add it to cart", verifiedSession)
	if err != nil {
		t.Fatalf("add turn: %v", err)
	}

	if !result.Success {
		t.Fatalf("add turn failed: %+v", result)
	}
	if engine.addCalls != 1 {
		t.Fatalf("AddToCart calls = %d", engine.addCalls)
	}
	if len(engine.lastHistory) == 0 {
		t.Fatal("engine received no conversation history")
	}
	last := engine.lastHistory[len(engine.lastHistory)-1]
	if last.LastProduct != "Infinix Hot 40" {
		t.Fatalf("LastProduct = %q, want the browsed product", last.LastProduct)
	}
}

func TestHandleUtteranceOracleQueryInvalidRetriesTemplateOnce(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		resolved: contractx.ResolvedQuery{SQL: "SELECT wrong FROM orders", Source: contractx.QuerySourceOracle},
	}
	executor := &fakeExecutor{results: []execResult{
		{err: fmt.Errorf("%w: column does not exist", contractx.ErrQueryInvalid)},
		{rows: []map[string]any{{"id": "ORD-1"}}},
	}}

	agent, err := New(newContextStore(t), resolver, executor, &fakeEngine{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := agent.HandleUtterance(context.Background(), "where is my order?", verifiedSession)
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}

	if !result.Success {
		t.Fatalf("turn failed after template retry: %+v", result)
	}
	if executor.calls != 2 {
		t.Fatalf("executor calls = %d, want exactly one retry", executor.calls)
	}
	if !result.Diagnostics.FallbackUsed {
		t.Fatal("fallback not recorded in diagnostics")
	}
}

func TestHandleUtteranceCheckoutFailureKeepsCoherentReply(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		checkoutErr: fmt.Errorf("%w: Infinix Hot 40 has 1 left, need 3", contractx.ErrStockInsufficient),
	}
	agent, err := New(newContextStore(t), &fakeResolver{}, &fakeExecutor{}, engine, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := agent.HandleUtterance(context.Background(), "checkout please", verifiedSession)
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}

	if result.Success {
		t.Fatal("failed checkout reported success")
	}
	if result.Facts.ErrorKind != "stock_insufficient" {
		t.Fatalf("ErrorKind = %q", result.Facts.ErrorKind)
	}
	if result.Reply == "" {
		t.Fatal("error turn produced no reply")
	}
}

func TestHandleUtteranceProseOracleFailureFallsBackDeterministically(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{
		resolved: contractx.ResolvedQuery{SQL: "SELECT 1", Source: contractx.QuerySourceTemplate},
	}
	executor := &fakeExecutor{results: []execResult{{
		rows: []map[string]any{{"name": "Infinix Hot 40"}},
	}}}
	prose := &fakeProse{err: errors.New("model timeout")}

	agent, err := New(newContextStore(t), resolver, executor, &fakeEngine{}, prose)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := agent.HandleUtterance(context.Background(), "show me phones", verifiedSession)
	if err != nil {
		t.Fatalf("HandleUtterance: %v", err)
	}

	if !result.Success {
		t.Fatalf("turn failed: %+v", result)
	}
	if result.Reply == "" || !strings.Contains(result.Reply, "row_count") {
		t.Fatalf("deterministic rendering missing facts: %q", result.Reply)
	}
}

func TestHandleUtteranceValidatesInput(t *testing.T) {
	t.Parallel()

	agent, err := New(newContextStore(t), &fakeResolver{}, &fakeExecutor{}, &fakeEngine{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := agent.HandleUtterance(context.Background(), "   ", verifiedSession); err == nil {
		t.Fatal("blank utterance accepted")
	}
	if _, err := agent.HandleUtterance(context.Background(), "hello", contractx.SessionContext{}); err == nil {
		t.Fatal("blank session accepted")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeResolver{}, &fakeExecutor{}, &fakeEngine{}, nil); err == nil {
		t.Fatal("nil context store accepted")
	}
	if _, err := New(newContextStore(t), nil, &fakeExecutor{}, &fakeEngine{}, nil); err == nil {
		t.Fatal("nil resolver accepted")
	}
	if _, err := New(newContextStore(t), &fakeResolver{}, nil, &fakeEngine{}, nil); err == nil {
		t.Fatal("nil executor accepted")
	}
	if _, err := New(newContextStore(t), &fakeResolver{}, &fakeExecutor{}, nil, nil); err == nil {
		t.Fatal("nil engine accepted")
	}
}
