package contract

import "errors"

var (
	// Non-fatal conversational outcomes.
	ErrScopeRejected       = errors.New("utterance is out of support scope")
	ErrExtractionAmbiguous = errors.New("extraction is ambiguous")
	ErrIdentityUnverified  = errors.New("identity is unverified")

	// Query path.
	ErrQueryGeneration = errors.New("query generation failed")
	ErrQueryTransient  = errors.New("query execution failed transiently")
	ErrQueryInvalid    = errors.New("query is invalid")
	ErrServiceDegraded = errors.New("service degraded")

	// Commerce path.
	ErrProductAmbiguous  = errors.New("product reference is ambiguous")
	ErrCartEmpty         = errors.New("cart is empty")
	ErrStockInsufficient = errors.New("stock insufficient")
	ErrOrderIntegrity    = errors.New("order integrity violation")

	ErrValidation = errors.New("validation failed")
)
