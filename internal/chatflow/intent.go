package chatflow

import (
	"strings"
	"unicode"
)

// Intent is the closed set of meanings a typed message can carry.
type Intent int

const (
	IntentNone Intent = iota
	IntentAffirm
	IntentDeny
	IntentRestart
	IntentSkip
	IntentBook
	IntentEstimate
	IntentSelfServe
	IntentAssist
	IntentQuick
	IntentFull
	IntentManual
)

var intentNames = map[Intent]string{
	IntentNone:      "none",
	IntentAffirm:    "affirm",
	IntentDeny:      "deny",
	IntentRestart:   "restart",
	IntentSkip:      "skip",
	IntentBook:      "book",
	IntentEstimate:  "estimate",
	IntentSelfServe: "self_serve",
	IntentAssist:    "assist",
	IntentQuick:     "quick",
	IntentFull:      "full",
	IntentManual:    "manual",
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return "unknown"
}

var affirmatives = wordSet(
	"yes", "y", "yeah", "yep", "yup", "sure", "ok", "okay", "correct", "right",
	"confirm", "confirmed", "absolutely", "of course", "definitely", "affirmative",
)

var negatives = wordSet(
	"no", "n", "nope", "nah", "not really", "negative", "incorrect", "wrong",
)

// Whole-message phrases.
var phraseIntents = map[Intent]map[string]struct{}{
	IntentRestart: wordSet("restart", "start over", "menu", "main menu", "reset"),
	IntentSkip:    wordSet("skip", "none", "nothing", "n/a", "na", "no notes"),
}

// Keywords matched as whole words anywhere in the message.
var keywordIntents = map[Intent]map[string]struct{}{
	IntentBook:      wordSet("book", "booking", "appointment", "appointments", "schedule", "visit"),
	IntentEstimate:  wordSet("estimate", "estimates", "cost", "costs", "price", "prices", "pricing", "quote"),
	IntentSelfServe: wordSet("online", "myself", "website", "link", "self"),
	IntentAssist:    wordSet("assist", "assistant", "help", "chat", "here"),
	IntentQuick:     wordSet("quick", "ballpark", "single", "estimate"),
	IntentFull:      wordSet("full", "detailed", "card", "upload", "photo"),
	IntentManual:    wordSet("manual", "manually", "type", "enter"),
}

// classificationOrder breaks ties when a message matches several intents.
var classificationOrder = []Intent{
	IntentAffirm, IntentDeny, IntentRestart, IntentSkip,
	IntentBook, IntentEstimate, IntentSelfServe, IntentAssist,
	IntentQuick, IntentFull, IntentManual,
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// IsAffirmative reports whether text, lower-cased and trimmed, is exactly one
// of the accepted affirmative answers. "yes please" is not affirmative.
func IsAffirmative(text string) bool {
	_, ok := affirmatives[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// IsNegative is the exact-match counterpart of IsAffirmative.
func IsNegative(text string) bool {
	_, ok := negatives[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// ClassifyIntent maps text to the first matching intent in priority order.
func ClassifyIntent(text string) Intent {
	return ClassifyAmong(text, classificationOrder...)
}

// ClassifyAmong returns the first of candidates that text matches, or IntentNone.
// Stages use it to resolve only the intents that are meaningful to them.
func ClassifyAmong(text string, candidates ...Intent) Intent {
	phrase := normalizePhrase(text)
	if phrase == "" {
		return IntentNone
	}
	var words []string
	for _, intent := range candidates {
		switch intent {
		case IntentAffirm:
			if IsAffirmative(text) {
				return intent
			}
		case IntentDeny:
			if IsNegative(text) {
				return intent
			}
		default:
			if set, ok := phraseIntents[intent]; ok {
				if _, hit := set[phrase]; hit {
					return intent
				}
				continue
			}
			if words == nil {
				words = strings.Fields(phrase)
			}
			set := keywordIntents[intent]
			for _, w := range words {
				if _, hit := set[w]; hit {
					return intent
				}
			}
		}
	}
	return IntentNone
}

// normalizePhrase lower-cases text, turns punctuation into spaces and
// collapses whitespace. "/" is kept for "n/a".
func normalizePhrase(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '/':
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}
