package query

import (
	"fmt"
	"strings"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

// Cardinality caps for fallback templates. Every template also carries a
// deterministic ORDER BY so identical inputs return identical result sets.
const (
	maxOrderRows   = 20
	maxProductRows = 20
	maxLookupRows  = 10
	maxRecommends  = 5
	revenueMonths  = 6
)

// FallbackFor builds the deterministic per-intent template query. It returns
// ErrIdentityUnverified when the intent needs an identity the caller does not
// have, and ErrQueryGeneration when no template exists for the intent.
func FallbackFor(intent contractx.Intent, entities contractx.EntityBag, id contractx.Identity) (contractx.ResolvedQuery, error) {
	switch intent {
	case contractx.IntentOrderLookup:
		return orderLookup(entities, id)
	case contractx.IntentCustomerLookup:
		return customerLookup(id)
	case contractx.IntentRevenueAnalytics:
		return revenueAnalytics(), nil
	case contractx.IntentGeographicAnalytics:
		return geographicAnalytics(), nil
	case contractx.IntentProductBrowse, contractx.IntentProductPrice:
		return productBrowse(entities), nil
	case contractx.IntentStockCheck:
		return stockCheck(entities), nil
	case contractx.IntentProductRecommendation:
		return productRecommendation(entities), nil
	default:
		return contractx.ResolvedQuery{}, fmt.Errorf("%w: no fallback template for intent=%s", contractx.ErrQueryGeneration, intent)
	}
}

func orderLookup(entities contractx.EntityBag, id contractx.Identity) (contractx.ResolvedQuery, error) {
	if id.Verified() {
		return template(fmt.Sprintf(`SELECT id, status, payment_method, total, delivery_date, created_at
FROM orders WHERE customer_id = ?
ORDER BY created_at DESC LIMIT %d`, maxOrderRows), id.CustomerID), nil
	}

	// Two-hop resolution through an order reference is permitted only when
	// the user supplied the reference in this utterance. An inherited
	// reference could belong to a different person on a shared channel.
	// Hash-style refs like "#1234" carry only the tail of an order id, so the
	// owner resolution also matches on suffix against ids like ORD-7F001234.
	if entities.OrderRef != "" && !entities.OrderRefInherited {
		ref := normalizeOrderRef(entities.OrderRef)
		return template(fmt.Sprintf(`SELECT id, status, payment_method, total, delivery_date, created_at
FROM orders WHERE customer_id = (SELECT customer_id FROM orders
WHERE upper(id) = ? OR upper(id) LIKE ? ORDER BY created_at DESC LIMIT 1)
ORDER BY created_at DESC LIMIT %d`, maxOrderRows), ref, "%"+ref), nil
	}

	return contractx.ResolvedQuery{}, fmt.Errorf("%w: authenticate or supply an order reference", contractx.ErrIdentityUnverified)
}

func customerLookup(id contractx.Identity) (contractx.ResolvedQuery, error) {
	if !id.Verified() {
		return contractx.ResolvedQuery{}, fmt.Errorf("%w: authenticate to view account details", contractx.ErrIdentityUnverified)
	}
	return template(`SELECT id, name, email, tier, lifetime_spend, region, delivery_address
FROM customers WHERE id = ? LIMIT 1`, id.CustomerID), nil
}

func revenueAnalytics() contractx.ResolvedQuery {
	return template(fmt.Sprintf(`SELECT date_trunc('month', created_at) AS month, count(*) AS orders, sum(total) AS revenue
FROM orders
WHERE created_at >= now() - interval '%d months' AND status <> 'returned'
GROUP BY 1 ORDER BY 1 DESC LIMIT %d`, revenueMonths, revenueMonths))
}

func geographicAnalytics() contractx.ResolvedQuery {
	return template(fmt.Sprintf(`SELECT c.region, count(o.id) AS orders, sum(o.total) AS revenue
FROM orders o JOIN customers c ON c.id = o.customer_id
WHERE o.status <> 'returned'
GROUP BY c.region ORDER BY revenue DESC, c.region ASC LIMIT %d`, maxLookupRows))
}

func productBrowse(entities contractx.EntityBag) contractx.ResolvedQuery {
	where, args := productFilters(entities, !entities.IncludeOutOfStock)
	sql := fmt.Sprintf(`SELECT id, name, category, brand, unit_price, stock_quantity, in_stock
FROM products%s
ORDER BY unit_price ASC, name ASC LIMIT %d`, where, maxProductRows)
	return template(sql, args...)
}

func stockCheck(entities contractx.EntityBag) contractx.ResolvedQuery {
	// Stock questions are about availability itself, so out-of-stock rows
	// stay visible.
	where, args := productFilters(entities, false)
	sql := fmt.Sprintf(`SELECT id, name, stock_quantity, in_stock
FROM products%s
ORDER BY name ASC LIMIT %d`, where, maxLookupRows)
	return template(sql, args...)
}

func productRecommendation(entities contractx.EntityBag) contractx.ResolvedQuery {
	where, args := productFilters(entities, true)
	sql := fmt.Sprintf(`SELECT id, name, category, brand, unit_price, stock_quantity
FROM products%s
ORDER BY unit_price ASC, name ASC LIMIT %d`, where, maxRecommends)
	return template(sql, args...)
}

// productFilters assembles the shared WHERE clause for product templates:
// category/brand closed-vocabulary matches, keyword ILIKEs, a price ceiling,
// and optionally an in-stock restriction. Placeholders use bun's ? syntax.
func productFilters(entities contractx.EntityBag, inStockOnly bool) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if len(entities.Categories) > 0 {
		placeholders := make([]string, 0, len(entities.Categories))
		for _, c := range entities.Categories {
			args = append(args, c)
			placeholders = append(placeholders, "?")
		}
		clauses = append(clauses, "lower(category) IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(entities.Brands) > 0 {
		placeholders := make([]string, 0, len(entities.Brands))
		for _, b := range entities.Brands {
			args = append(args, b)
			placeholders = append(placeholders, "?")
		}
		clauses = append(clauses, "lower(brand) IN ("+strings.Join(placeholders, ", ")+")")
	}

	const maxKeywordFilters = 3
	var keywordClauses []string
	for i, kw := range entities.ProductKeywords {
		if i == maxKeywordFilters {
			break
		}
		args = append(args, "%"+kw+"%")
		keywordClauses = append(keywordClauses, "name ILIKE ?")
	}
	if len(keywordClauses) > 0 {
		clauses = append(clauses, "("+strings.Join(keywordClauses, " OR ")+")")
	}

	if entities.Budget > 0 {
		clauses = append(clauses, "unit_price <= ?")
		args = append(args, entities.Budget)
	}
	if inStockOnly {
		clauses = append(clauses, "in_stock = TRUE AND stock_quantity > 0")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(clauses, " AND "), args
}

func normalizeOrderRef(ref string) string {
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(ref)), "#")
}

func template(sql string, args ...any) contractx.ResolvedQuery {
	return contractx.ResolvedQuery{SQL: sql, Args: args, Source: contractx.QuerySourceTemplate}
}
