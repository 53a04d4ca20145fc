package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

// Resolver turns (utterance, intent, entities, identity) into an executable
// query. Primary path is the NL-to-SQL oracle; on any oracle failure the
// deterministic per-intent template takes over. The two strategies never
// interleave inside one attempt.
type Resolver struct {
	oracle contractx.QueryOracle
	schema string
}

func NewResolver(oracle contractx.QueryOracle, schema string) *Resolver {
	return &Resolver{oracle: oracle, schema: schema}
}

// Resolve tries the oracle first and falls back to the intent template. The
// returned query records which source produced it.
func (r *Resolver) Resolve(
	ctx context.Context,
	utterance string,
	intent contractx.Intent,
	entities contractx.EntityBag,
	id contractx.Identity,
) (contractx.ResolvedQuery, error) {
	if r.oracle != nil {
		sql, err := r.oracle.GenerateQuery(ctx, utterance, intent, entities, r.schema)
		if err == nil {
			if sanitized, serr := SanitizeSQL(sql); serr == nil {
				return contractx.ResolvedQuery{SQL: sanitized, Source: contractx.QuerySourceOracle}, nil
			} else {
				log.Warn().Err(serr).Str("intent", string(intent)).Msg("oracle query rejected by sanitizer")
			}
		} else {
			log.Warn().Err(err).Str("intent", string(intent)).Msg("query oracle failed, using template")
		}
	}

	return FallbackFor(intent, entities, id)
}

var forbiddenSQLPattern = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|copy)\b`)

// SanitizeSQL validates oracle output: single read-only statement, non-empty.
// Anything suspect is rejected so the caller falls back to a template.
func SanitizeSQL(raw string) (string, error) {
	sql := strings.TrimSpace(raw)
	sql = strings.TrimPrefix(sql, "```sql")
	sql = strings.TrimPrefix(sql, "```")
	sql = strings.TrimSuffix(sql, "```")
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")

	if sql == "" {
		return "", fmt.Errorf("%w: oracle returned empty query", contractx.ErrQueryGeneration)
	}
	if strings.Contains(sql, ";") {
		return "", fmt.Errorf("%w: multiple statements", contractx.ErrQueryGeneration)
	}

	lowered := strings.ToLower(sql)
	if !strings.HasPrefix(lowered, "select") && !strings.HasPrefix(lowered, "with") {
		return "", fmt.Errorf("%w: not a read-only query", contractx.ErrQueryGeneration)
	}
	if forbiddenSQLPattern.MatchString(sql) {
		return "", fmt.Errorf("%w: mutating keyword in query", contractx.ErrQueryGeneration)
	}
	return sql, nil
}
