package aggregate

// EventTypeCasual is the fallback when no rule matches.
const EventTypeCasual = "casual"

// minKeywordHits is how many keywords of a rule must appear in the
// aggregated tag/scene set before the rule matches. A single shared word
// like "stage" or "team" must not decide the event type on its own.
const minKeywordHits = 2

type eventRule struct {
	name     string
	keywords []string
}

// eventRules is evaluated in declared order; the first matching rule wins.
var eventRules = []eventRule{
	{"birthday", []string{"cake", "candles", "balloons", "birthday", "confetti", "party"}},
	{"team_outing", []string{"office", "colleagues", "team", "restaurant", "outing", "lunch"}},
	{"beach_party", []string{"beach", "ocean", "sand", "sunset", "waves", "swimwear"}},
	{"conference", []string{"podium", "presentation", "audience", "projector", "lanyard", "stage"}},
	{"wedding", []string{"bride", "groom", "veil", "bouquet", "wedding", "altar"}},
	{"sports_event", []string{"stadium", "jersey", "scoreboard", "field", "ball", "referee"}},
	{"concert", []string{"guitar", "microphone", "crowd", "band", "lights", "stage"}},
}

// InferEventType matches the aggregated keyword set against the rule table.
func InferEventType(keywords map[string]bool) string {
	for _, rule := range eventRules {
		hits := 0
		for _, kw := range rule.keywords {
			if keywords[kw] {
				hits++
			}
		}
		if hits >= minKeywordHits {
			return rule.name
		}
	}
	return EventTypeCasual
}
