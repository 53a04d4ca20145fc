package nodes

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

var (
	ErrInvalidUtterance = errors.New("utterance is empty")
	ErrInvalidSession   = errors.New("session id is empty")
)

type GraphInput struct {
	Utterance string
	Session   contractx.SessionContext
}

type GraphOutput = contractx.Result

// GraphState carries one turn through the pipeline.
type GraphState struct {
	Utterance string
	Session   contractx.SessionContext
	Now       time.Time
	Start     time.Time

	InScope     bool
	Identity    contractx.Identity
	IdentityKey string
	History     []contractx.ContextEntry
	Entities    contractx.EntityBag
	Intent      contractx.Intent
	Sentiment   contractx.Sentiment

	Rows          []map[string]any
	CommerceFacts map[string]any
	FallbackUsed  bool
	Retries       int

	// TurnErr holds a taxonomy error; the turn still composes a coherent
	// fact bundle around it.
	TurnErr error

	Facts contractx.ResponseFacts
	Reply string
}

// ValidateRequest checks the raw input and seeds the state.
func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	utterance := strings.TrimSpace(in.Utterance)
	if utterance == "" {
		return nil, ErrInvalidUtterance
	}
	if strings.TrimSpace(in.Session.SessionID) == "" {
		return nil, ErrInvalidSession
	}

	now := nowFn().UTC()
	return &GraphState{
		Utterance: utterance,
		Session:   in.Session,
		Now:       now,
		Start:     now,
		InScope:   true,
		Intent:    contractx.IntentGeneral,
	}, nil
}
