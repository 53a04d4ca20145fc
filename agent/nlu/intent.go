package nlu

import (
	"strings"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

// Keyword groups in classifier priority order. First match wins; ties are
// impossible by construction.
var (
	checkoutTerms = []string{
		"checkout", "check out", "place order", "place my order", "buy now",
		"pay now", "complete my order", "proceed to payment",
	}

	addToCartTerms = []string{
		"add to cart", "add it to cart", "add to my cart", "add this to cart",
		"put in my cart", "i want to buy", "i want to order",
	}

	cartViewTerms = []string{
		"my cart", "view cart", "show cart", "in the cart", "cart total",
		"what's in my cart", "whats in my cart",
	}

	orderTrackingTerms = []string{
		"track", "tracking", "my order", "order status", "where is my",
		"my orders", "order history", "has my order", "delivery status",
		"when will my order",
	}

	revenueTerms = []string{
		"revenue", "sales figures", "total sales", "earnings", "turnover",
		"how much did we", "monthly sales",
	}

	geographicTerms = []string{
		"by region", "by state", "by city", "per region", "across regions",
		"geographic", "which region", "which state", "which city",
	}

	stockTerms = []string{
		"in stock", "stock", "available", "availability", "do you have",
		"out of stock",
	}

	priceTerms = []string{
		"price", "cost", "how much is", "how much for", "what does it cost",
	}

	browseTerms = []string{
		"show me", "browse", "list", "catalogue", "catalog", "looking for",
		"do you sell", "what do you have",
	}

	customerTerms = []string{
		"my account", "my profile", "my tier", "my details", "account details",
		"loyalty", "lifetime spend",
	}

	temporalTerms = []string{
		"today", "yesterday", "this week", "last week", "this month",
		"last month", "recent", "recently", "latest",
	}
)

// Classify maps (utterance, entities) to one closed-set intent. Deterministic:
// evaluation is strictly ordered, highest priority first, no scoring.
func Classify(utterance string, entities contractx.EntityBag) contractx.Intent {
	lowered := strings.ToLower(utterance)

	// Explicit shopping actions outrank everything, including an order ref in
	// the same utterance.
	switch {
	case matchesAny(lowered, checkoutTerms):
		return contractx.IntentCheckout
	case matchesAny(lowered, addToCartTerms):
		return contractx.IntentShoppingCartAdd
	case matchesAny(lowered, cartViewTerms):
		return contractx.IntentCartView
	case len(entities.PaymentMethods) > 0 && entities.ShoppingIntent:
		return contractx.IntentCheckout
	}

	if matchesAny(lowered, orderTrackingTerms) || entities.OrderRef != "" && !entities.OrderRefInherited {
		return contractx.IntentOrderLookup
	}

	if matchesAny(lowered, revenueTerms) || matchesAny(lowered, geographicTerms) {
		if matchesAny(lowered, geographicTerms) {
			return contractx.IntentGeographicAnalytics
		}
		return contractx.IntentRevenueAnalytics
	}

	if matchesAny(lowered, customerTerms) {
		return contractx.IntentCustomerLookup
	}

	// Product family: recommendation beats the narrower lookups, stock beats
	// price so "is the cheap one in stock" lands on availability.
	productSignal := len(entities.Categories) > 0 || len(entities.Brands) > 0 ||
		matchesAny(lowered, browseTerms) || matchesAny(lowered, stockTerms) ||
		matchesAny(lowered, priceTerms)
	if productSignal || entities.RecommendationIntent {
		switch {
		case entities.RecommendationIntent:
			return contractx.IntentProductRecommendation
		case matchesAny(lowered, stockTerms):
			return contractx.IntentStockCheck
		case matchesAny(lowered, priceTerms):
			return contractx.IntentProductPrice
		default:
			return contractx.IntentProductBrowse
		}
	}

	// A bare temporal reference ("anything from last week?") reads as an
	// order-history question in a support channel.
	if matchesAny(lowered, temporalTerms) {
		return contractx.IntentOrderLookup
	}

	return contractx.IntentGeneral
}
