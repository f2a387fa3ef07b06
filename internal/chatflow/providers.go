package chatflow

import (
	"slices"
	"sort"
	"strings"

	"github.com/AyushPatel04/dental-chatbot/internal/pricing"
)

// InsuranceSelection is the insurance captured for an estimate, either typed
// step by step or read from a card photo.
type InsuranceSelection struct {
	Provider        string `json:"provider,omitempty"`
	MemberID        string `json:"memberId,omitempty"`
	MemberName      string `json:"memberName,omitempty"`
	IsOtherProvider bool   `json:"isOtherProvider"`
}

// Plan is the name the estimate is priced under. Other providers keep their
// own name so the estimate can mention it.
func (s InsuranceSelection) Plan() string {
	switch {
	case s.Provider != "":
		return s.Provider
	case s.IsOtherProvider:
		return pricing.PlanOther
	default:
		return pricing.NoInsurance
	}
}

var providerAliases = []struct {
	alias string
	plan  string
}{
	{"blue cross", pricing.PlanBlueCrossBlueShield},
	{"blue shield", pricing.PlanBlueCrossBlueShield},
	{"bcbs", pricing.PlanBlueCrossBlueShield},
	{"anthem", pricing.PlanBlueCrossBlueShield},
	{"united", pricing.PlanUnitedHealthcare},
	{"uhc", pricing.PlanUnitedHealthcare},
	{"met life", pricing.PlanMetLife},
	{"delta", pricing.PlanDeltaDental},
	{"medicare", pricing.PlanMedicare},
	{"medicaid", pricing.PlanMedicaid},
}

type providerMatch struct {
	name string
	at   int
	size int
}

// MatchProvider normalizes a free-form provider guess against known provider
// names using case-insensitive substring matching and a short alias list. When
// several providers appear, a private plan beats Medicare or Medicaid (as in
// "Humana Medicare Advantage"), then the earliest mention wins.
func MatchProvider(guess string, known []string) (string, bool) {
	g := strings.ToLower(strings.Join(strings.Fields(guess), " "))
	if g == "" {
		return "", false
	}

	candidates := make([]string, 0, len(known))
	for _, name := range known {
		if name == pricing.NoInsurance || name == pricing.PlanOther {
			continue
		}
		candidates = append(candidates, name)
	}

	var matches []providerMatch
	for _, name := range candidates {
		if i := strings.Index(g, strings.ToLower(name)); i >= 0 {
			matches = append(matches, providerMatch{name: name, at: i, size: len(name)})
		}
	}
	for _, a := range providerAliases {
		i := strings.Index(g, a.alias)
		if i < 0 || !slices.Contains(candidates, a.plan) {
			continue
		}
		matches = append(matches, providerMatch{name: a.plan, at: i, size: len(a.alias)})
	}
	if name, ok := bestProviderMatch(matches); ok {
		return name, true
	}

	// A fragment of a known name, such as "cign".
	if len(g) >= 4 {
		sort.SliceStable(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
		for _, name := range candidates {
			if strings.Contains(strings.ToLower(name), g) {
				return name, true
			}
		}
	}
	return "", false
}

func bestProviderMatch(matches []providerMatch) (string, bool) {
	if len(matches) == 0 {
		return "", false
	}
	var private []providerMatch
	for _, m := range matches {
		if !pricing.IsGovernmentPlan(m.name) {
			private = append(private, m)
		}
	}
	if len(private) > 0 {
		matches = private
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].at != matches[j].at {
			return matches[i].at < matches[j].at
		}
		return matches[i].size > matches[j].size
	})
	return matches[0].name, true
}

// NormalizeSelection resolves the provider guess of sel. Unmatched guesses are
// kept verbatim and flagged as another provider.
func NormalizeSelection(sel InsuranceSelection, known []string) InsuranceSelection {
	raw := strings.TrimSpace(sel.Provider)
	if name, ok := MatchProvider(raw, known); ok {
		sel.Provider = name
		sel.IsOtherProvider = false
		return sel
	}
	sel.Provider = raw
	sel.IsOtherProvider = raw != ""
	return sel
}
