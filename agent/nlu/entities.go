package nlu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

// Closed vocabularies. Matching is case-insensitive whole-word/phrase.
var (
	knownRegions = []string{
		"lagos", "abuja", "port harcourt", "kano", "ibadan", "enugu",
		"kaduna", "benin city", "jos", "owerri", "abeokuta", "calabar",
	}

	knownCategories = []string{
		"phones", "smartphones", "laptops", "computing", "electronics",
		"appliances", "fashion", "groceries", "accessories", "gaming",
	}

	knownBrands = []string{
		"samsung", "apple", "tecno", "infinix", "itel", "xiaomi",
		"lg", "sony", "hp", "dell", "lenovo", "nike", "adidas", "oraimo",
	}

	// canonical payment method -> utterance aliases
	paymentAliases = map[string][]string{
		"card":             {"card", "debit card", "credit card"},
		"transfer":         {"transfer", "bank transfer"},
		"ussd":             {"ussd"},
		"cash_on_delivery": {"cash on delivery", "pay on delivery", "pod"},
		"wallet":           {"wallet"},
	}

	shoppingTerms = []string{
		"add to cart", "add it to cart", "add to my cart", "buy", "buy now",
		"purchase", "checkout", "check out", "place order", "place my order",
		"pay for", "i want to order",
	}

	recommendationTerms = []string{
		"recommend", "recommendation", "suggest", "what should i",
		"best", "top rated",
	}
)

var (
	// Bare "for" is not a budget trigger: "pay for 2 items" names a quantity,
	// not a price ceiling. "for ₦425,000" still lands via nairaPattern.
	budgetPattern   = regexp.MustCompile(`(?i)(?:under|below|less than|within|around|budget(?: of)?|max(?:imum)?(?: of)?)\s*(?:₦|ngn\s?|n)?([0-9][0-9,]*(?:\.[0-9]+)?)\s*([km])?\b`)
	nairaPattern    = regexp.MustCompile(`(?i)(?:₦|ngn\s?)([0-9][0-9,]*(?:\.[0-9]+)?)\s*([km])?\b`)
	quantityPattern = regexp.MustCompile(`(?i)\b(?:x\s?([0-9]+)|([0-9]+)\s*(?:x\b|units?|pieces?|pcs))`)
	orderRefPattern = regexp.MustCompile(`(?i)\b(ord[-_][0-9a-z][0-9a-z-]*|ord[0-9]{3,})\b|#([0-9]{3,})`)
)

var extractionStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "i": {}, "my": {}, "me": {}, "to": {},
	"of": {}, "for": {}, "in": {}, "on": {}, "is": {}, "it": {}, "do": {},
	"you": {}, "have": {}, "want": {}, "please": {}, "can": {}, "what": {},
	"whats": {}, "how": {}, "much": {}, "show": {}, "and": {}, "with": {},
	"that": {}, "this": {}, "there": {}, "any": {},
}

// Extract parses an utterance into a typed entity bag. Context is consulted
// for exactly one thing: inheriting an order reference when the utterance has
// none. Identity is never inherited.
func Extract(utterance string, history []contractx.ContextEntry) contractx.EntityBag {
	lowered := strings.ToLower(utterance)
	bag := contractx.EntityBag{}

	for _, r := range knownRegions {
		if containsTerm(lowered, r) {
			bag.Regions = append(bag.Regions, r)
		}
	}
	for _, c := range knownCategories {
		if containsTerm(lowered, c) {
			bag.Categories = append(bag.Categories, c)
		}
	}
	for _, b := range knownBrands {
		if containsTerm(lowered, b) {
			bag.Brands = append(bag.Brands, b)
		}
	}
	for method, aliases := range paymentAliases {
		for _, alias := range aliases {
			if containsTerm(lowered, alias) {
				bag.PaymentMethods = append(bag.PaymentMethods, method)
				break
			}
		}
	}

	bag.Budget = extractBudget(lowered)
	bag.Quantity = extractQuantity(lowered)
	bag.OrderRef = extractOrderRef(utterance)
	bag.ShoppingIntent = matchesAny(lowered, shoppingTerms)
	bag.RecommendationIntent = matchesAny(lowered, recommendationTerms)
	bag.IncludeOutOfStock = strings.Contains(lowered, "out of stock")
	bag.ProductKeywords = extractKeywords(lowered)

	if bag.OrderRef == "" {
		if ref := inheritOrderRef(history); ref != "" {
			bag.OrderRef = ref
			bag.OrderRefInherited = true
		}
	}

	sortStrings(bag.Regions)
	sortStrings(bag.Categories)
	sortStrings(bag.Brands)
	sortStrings(bag.PaymentMethods)
	return bag
}

// inheritOrderRef walks history newest-first for an order reference. This is
// the only field the extractor may inherit.
func inheritOrderRef(history []contractx.ContextEntry) string {
	for i := len(history) - 1; i >= 0; i-- {
		if ref := history[i].Entities.OrderRef; ref != "" {
			return ref
		}
	}
	return ""
}

func extractBudget(lowered string) float64 {
	m := budgetPattern.FindStringSubmatch(lowered)
	if m == nil {
		m = nairaPattern.FindStringSubmatch(lowered)
	}
	if m == nil {
		return 0
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		// Malformed numerics never fail the whole extraction.
		return 0
	}
	switch strings.ToLower(m[len(m)-1]) {
	case "k":
		value *= 1_000
	case "m":
		value *= 1_000_000
	}
	return value
}

func extractQuantity(lowered string) int {
	m := quantityPattern.FindStringSubmatch(lowered)
	if m == nil {
		return 0
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	qty, err := strconv.Atoi(raw)
	if err != nil || qty <= 0 {
		return 0
	}
	return qty
}

func extractOrderRef(utterance string) string {
	m := orderRefPattern.FindStringSubmatch(utterance)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return strings.ToUpper(m[1])
	}
	return "#" + m[2]
}

// extractKeywords keeps the free-text residue of the utterance: lowercase
// tokens that are not stopwords and not part of a closed vocabulary. Capped
// to keep downstream LIKE filters cheap.
func extractKeywords(lowered string) []string {
	const maxKeywords = 6

	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})

	var out []string
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, ok := extractionStopwords[f]; ok {
			continue
		}
		out = append(out, f)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func matchesAny(lowered string, terms []string) bool {
	for _, t := range terms {
		if containsTerm(lowered, t) {
			return true
		}
	}
	return false
}

func sortStrings(s []string) {
	sort.Strings(s)
}
