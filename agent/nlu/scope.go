package nlu

import "strings"

// supportVocabulary is the curated in-scope term set. A single hit anywhere in
// the utterance keeps the turn in scope.
var supportVocabulary = []string{
	"order", "orders", "delivery", "deliveries", "shipping", "shipment",
	"track", "tracking", "refund", "return", "returns",
	"payment", "pay", "paid", "card", "transfer", "ussd", "wallet",
	"product", "products", "item", "items", "price", "prices", "cost",
	"stock", "available", "availability", "buy", "purchase", "cart",
	"checkout", "account", "profile", "customer", "tier", "discount",
	"voucher", "coupon", "catalogue", "catalog", "brand", "category",
	"recommend", "recommendation", "browse", "shop", "store",
	"revenue", "sales", "invoice", "receipt",
}

// offTopicVocabulary is the curated out-of-scope set. It only applies when no
// support term matched; ambiguity defaults to allow.
var offTopicVocabulary = []string{
	"politics", "election", "president", "senate", "government",
	"movie", "movies", "film", "music", "song", "celebrity", "football match",
	"capital of", "population of", "who invented", "meaning of life",
	"diagnose", "symptom", "medication", "prescription", "medical advice",
	"invest", "stocks to buy", "crypto", "forex", "financial advice",
	"write code", "debug", "python", "javascript", "homework",
	"weather", "horoscope", "recipe", "joke",
}

// CheckScope reports whether an utterance belongs to the support domain.
// Pure and deterministic: support vocabulary wins, then the off-topic list
// rejects, and anything else passes through.
func CheckScope(utterance string) bool {
	lowered := strings.ToLower(utterance)
	for _, term := range supportVocabulary {
		if containsTerm(lowered, term) {
			return true
		}
	}
	for _, term := range offTopicVocabulary {
		if containsTerm(lowered, term) {
			return false
		}
	}
	return true
}

// containsTerm matches whole words for single tokens and substrings for
// multi-word phrases, so "cart" does not match "cartoon".
func containsTerm(lowered, term string) bool {
	if strings.ContainsRune(term, ' ') {
		return strings.Contains(lowered, term)
	}
	for _, word := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if word == term {
			return true
		}
	}
	return false
}
