// Package identity derives the authoritative requester identity. It is a pure
// function of the verified-session assertion; nothing recovered from
// conversation context or entity extraction can influence it.
package identity

import (
	"fmt"
	"strings"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

// Resolve maps the verified-session assertion to a tagged identity. An
// authenticated session always wins; everything else is a guest.
func Resolve(session contractx.SessionContext) contractx.Identity {
	customerID := strings.TrimSpace(session.CustomerID)
	if session.Authenticated && customerID != "" {
		return contractx.Identity{Kind: contractx.IdentityVerified, CustomerID: customerID}
	}
	return contractx.Identity{Kind: contractx.IdentityGuest}
}

// RequireVerified gates commerce writes. Guests are refused with an explicit
// authenticate-or-supply-reference signal instead of any stale id reuse.
func RequireVerified(id contractx.Identity) error {
	if !id.Verified() {
		return fmt.Errorf("%w: authenticate or supply an order reference", contractx.ErrIdentityUnverified)
	}
	return nil
}

// Key returns the key under which per-identity ephemeral state (conversation
// context, cart sessions) is stored.
func Key(id contractx.Identity, sessionID string) string {
	if id.Verified() {
		return "customer:" + id.CustomerID
	}
	return "guest:" + strings.TrimSpace(sessionID)
}
