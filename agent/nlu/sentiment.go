package nlu

import (
	"strings"

	contractx "github.com/kasuwahq/support-agent/agent/contract"
)

var sentimentVocabulary = []struct {
	sentiment contractx.Sentiment
	terms     []string
}{
	{contractx.SentimentFrustrated, []string{
		"frustrated", "annoyed", "angry", "ridiculous", "terrible",
		"worst", "useless", "fed up", "not again",
	}},
	{contractx.SentimentWorried, []string{
		"worried", "concerned", "scared", "afraid", "is it safe",
		"did i lose", "charged twice",
	}},
	{contractx.SentimentImpatient, []string{
		"asap", "urgent", "immediately", "right now", "still waiting",
		"how long", "taking forever",
	}},
	{contractx.SentimentConfused, []string{
		"confused", "don't understand", "dont understand", "what do you mean",
		"makes no sense", "not sure how",
	}},
	{contractx.SentimentHappy, []string{
		"thanks", "thank you", "great", "awesome", "perfect", "love",
	}},
}

// ClassifySentiment maps an utterance to the closed tone enum. First matching
// bucket wins; everything else is neutral.
func ClassifySentiment(utterance string) contractx.Sentiment {
	lowered := strings.ToLower(utterance)
	for _, bucket := range sentimentVocabulary {
		for _, term := range bucket.terms {
			if strings.Contains(lowered, term) {
				return bucket.sentiment
			}
		}
	}
	return contractx.SentimentNeutral
}

// EmpathyRequired reports whether the tone calls for an empathetic response.
func EmpathyRequired(s contractx.Sentiment) bool {
	switch s {
	case contractx.SentimentFrustrated, contractx.SentimentWorried, contractx.SentimentImpatient:
		return true
	default:
		return false
	}
}
