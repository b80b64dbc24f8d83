package grouping

import (
	"github.com/agenthands/micromatch/internal/core/model"
	"github.com/agenthands/micromatch/internal/core/topics"
)

// BuildBuckets groups respondents by canonical topic and splits every topic
// by declared preference. A participant lands in a topic's bucket at most
// once, however many of their raw topics map to it. Participants with no
// usable topics land nowhere. Buckets come back in first-seen order.
func BuildBuckets(responses []model.Response, mapping topics.Mapping) []*model.Bucket {
	byTopic := make(map[string]*model.Bucket)
	var ordered []*model.Bucket

	for _, r := range responses {
		seen := make(map[string]struct{}, len(r.Topics))
		for _, raw := range r.Topics {
			topic := mapping.Canonical(raw)
			if topic == "" {
				continue
			}
			if _, dup := seen[topic]; dup {
				continue
			}
			seen[topic] = struct{}{}

			b, ok := byTopic[topic]
			if !ok {
				b = model.NewBucket(topic)
				byTopic[topic] = b
				ordered = append(ordered, b)
			}

			if r.Preference == model.PreferencePairwise {
				b.Pairwise.Add(r.ParticipantID)
			} else {
				b.Group.Add(r.ParticipantID)
			}
		}
	}

	return ordered
}
