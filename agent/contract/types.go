package contract

import "time"

// Intent is the closed set of conversation intents the classifier can emit.
type Intent string

const (
	IntentCustomerLookup        Intent = "customer_lookup"
	IntentOrderLookup           Intent = "order_lookup"
	IntentRevenueAnalytics      Intent = "revenue_analytics"
	IntentGeographicAnalytics   Intent = "geographic_analytics"
	IntentProductBrowse         Intent = "product_browse"
	IntentProductPrice          Intent = "product_price"
	IntentStockCheck            Intent = "stock_check"
	IntentProductRecommendation Intent = "product_recommendation"
	IntentShoppingCartAdd       Intent = "shopping_cart_add"
	IntentCartView              Intent = "cart_view"
	IntentCheckout              Intent = "checkout"
	IntentGeneral               Intent = "general"
)

// IsCommerce reports whether the intent routes through the cart/checkout
// engine rather than the query path.
func (i Intent) IsCommerce() bool {
	return i == IntentShoppingCartAdd || i == IntentCartView || i == IntentCheckout
}

// Sentiment is the closed tone classification passed to the prose oracle.
type Sentiment string

const (
	SentimentNeutral    Sentiment = "neutral"
	SentimentFrustrated Sentiment = "frustrated"
	SentimentWorried    Sentiment = "worried"
	SentimentConfused   Sentiment = "confused"
	SentimentHappy      Sentiment = "happy"
	SentimentImpatient  Sentiment = "impatient"
)

// EntityBag is the typed result of deterministic entity extraction.
// Zero values mean "absent"; malformed numerics are dropped, never errors.
type EntityBag struct {
	Regions         []string `json:"regions,omitempty"`
	PaymentMethods  []string `json:"payment_methods,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Brands          []string `json:"brands,omitempty"`
	ProductKeywords []string `json:"product_keywords,omitempty"`
	Budget          float64  `json:"budget,omitempty"`
	Quantity        int      `json:"quantity,omitempty"`
	OrderRef        string   `json:"order_ref,omitempty"`

	// OrderRefInherited marks an order reference recovered from conversation
	// context rather than the current utterance. Inherited references never
	// authorize the two-hop owner lookup.
	OrderRefInherited bool `json:"order_ref_inherited,omitempty"`

	ShoppingIntent       bool `json:"shopping_intent,omitempty"`
	RecommendationIntent bool `json:"recommendation_intent,omitempty"`

	// IncludeOutOfStock is set when the user explicitly asks about items
	// that are out of stock; product templates otherwise hide them.
	IncludeOutOfStock bool `json:"include_out_of_stock,omitempty"`
}

// IdentityKind is a tagged variant: identity comes from the verified session
// assertion or it is a guest. There is no third source.
type IdentityKind string

const (
	IdentityVerified IdentityKind = "verified"
	IdentityGuest    IdentityKind = "guest"
)

type Identity struct {
	Kind       IdentityKind `json:"kind"`
	CustomerID string       `json:"customer_id,omitempty"`
}

func (id Identity) Verified() bool {
	return id.Kind == IdentityVerified && id.CustomerID != ""
}

// SessionContext is the verified-session assertion handed in by the channel
// adapter. It is trusted unconditionally.
type SessionContext struct {
	SessionID     string `json:"session_id"`
	Authenticated bool   `json:"authenticated"`
	CustomerID    string `json:"customer_id,omitempty"`
}

// ContextEntry is one past conversation turn. Entries carry entities for
// reference inheritance only; they never carry authority over identity.
type ContextEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Intent        Intent    `json:"intent"`
	Entities      EntityBag `json:"entities"`
	ResultSummary string    `json:"result_summary,omitempty"`

	// LastProduct is the most recently surfaced product name, used by
	// AddToCart when the utterance names no product ("add it to cart").
	LastProduct string `json:"last_product,omitempty"`
}

// QuerySource records which strategy produced the executed query.
type QuerySource string

const (
	QuerySourceOracle   QuerySource = "oracle"
	QuerySourceTemplate QuerySource = "template"
)

// ResolvedQuery is a parametrized, executable query.
type ResolvedQuery struct {
	SQL    string
	Args   []any
	Source QuerySource
}

// ResponseFacts is the fact bundle the prose oracle renders. It governs what
// must be conveyed, never the wording.
type ResponseFacts struct {
	Intent          Intent         `json:"intent"`
	Facts           map[string]any `json:"facts"`
	Sentiment       Sentiment      `json:"sentiment"`
	EmpathyRequired bool           `json:"empathy_required"`
	ErrorKind       string         `json:"error_kind,omitempty"`
}

// Diagnostics is surfaced to channel adapters alongside every result.
type Diagnostics struct {
	Intent       Intent        `json:"intent"`
	FallbackUsed bool          `json:"fallback_used"`
	Retries      int           `json:"retries"`
	RowCount     int           `json:"row_count"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Result is the single upward-facing return of handleUtterance.
type Result struct {
	Success     bool          `json:"success"`
	Reply       string        `json:"reply,omitempty"`
	Facts       ResponseFacts `json:"response_facts"`
	Intent      Intent        `json:"intent"`
	Diagnostics Diagnostics   `json:"diagnostics"`
}
