package aggregate

import (
	"sort"
	"strings"

	"github.com/Shishir-S-H/Kaleidoscope-sub001/internal/insight"
)

// requiredServices must all be present for a media item before the post is
// considered complete. Face detection is supplementary and never blocks
// completeness.
var requiredServices = []insight.Service{
	insight.ServiceModeration,
	insight.ServiceTagging,
	insight.ServiceScene,
	insight.ServiceCaption,
}

func hasService(m *MediaState, svc insight.Service) bool {
	switch svc {
	case insight.ServiceModeration:
		return m.HasSafety
	case insight.ServiceTagging:
		return m.HasTags
	case insight.ServiceScene:
		return m.HasScenes
	case insight.ServiceCaption:
		return m.HasCaption
	}
	return false
}

// Complete reports whether every discovered media id has every required
// service represented. A post with no discovered media is never complete.
func Complete(acc *Accumulator) bool {
	ids := acc.MediaIDs()
	if len(ids) == 0 {
		return false
	}
	for id := range ids {
		m, ok := acc.Media[id]
		if !ok {
			return false
		}
		for _, svc := range requiredServices {
			if !hasService(m, svc) {
				return false
			}
		}
	}
	return true
}

// Compute derives the aggregated insight from an accumulator. The result
// is deterministic and independent of event arrival order.
func Compute(acc *Accumulator, partial bool) insight.AggregatedInsight {
	tagSet := make(map[string]bool)
	sceneSet := make(map[string]bool)
	totalFaces := 0
	isSafe := true

	mediaIDs := make([]string, 0, len(acc.Media))
	for id := range acc.Media {
		mediaIDs = append(mediaIDs, id)
	}
	sort.Strings(mediaIDs)

	var captions []string
	for _, id := range mediaIDs {
		m := acc.Media[id]
		for _, t := range m.Tags {
			if t = normalize(t); t != "" {
				tagSet[t] = true
			}
		}
		for _, sc := range m.Scenes {
			if sc = normalize(sc); sc != "" {
				sceneSet[sc] = true
			}
		}
		if m.HasCaption && m.Caption != "" {
			captions = append(captions, m.Caption)
		}
		if m.HasSafety && !m.Safe {
			isSafe = false
		}
		totalFaces += m.FaceCount
	}

	keywords := make(map[string]bool, len(tagSet)+len(sceneSet))
	for t := range tagSet {
		keywords[t] = true
	}
	for sc := range sceneSet {
		keywords[sc] = true
	}

	return insight.AggregatedInsight{
		PostID:            acc.PostID,
		MediaCount:        len(acc.Media),
		AggregatedTags:    sortedSlice(tagSet),
		AggregatedScenes:  sortedSlice(sceneSet),
		TotalFaces:        totalFaces,
		IsSafe:            isSafe,
		InferredEventType: InferEventType(keywords),
		CombinedCaption:   strings.Join(captions, " | "),
		HasMultipleImages: len(acc.Media) > 1,
		CorrelationID:     acc.CorrelationID,
		IsPartial:         partial,
	}
}

// mediaMissingSafety lists the media ids that carry no moderation signal.
// They are excluded from the isSafe conjunction, so the publisher reports
// them as incomplete.
func mediaMissingSafety(acc *Accumulator) []string {
	var out []string
	for id, m := range acc.Media {
		if !m.HasSafety {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sortedSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
