package grouping

import (
	"github.com/agenthands/micromatch/internal/core/model"
)

const DefaultMaxGroupSize = 10

// Batch splits a topic's group members into GROUP units of at most maxSize,
// except that a remainder of one is folded into the last full batch. No unit
// ever has fewer than two members, so fewer than two members yield nothing.
func Batch(topic string, members []string, maxSize int) []model.Unit {
	if maxSize < 2 {
		maxSize = DefaultMaxGroupSize
	}
	if len(members) < 2 {
		return nil
	}

	var batches [][]string
	if len(members) <= maxSize {
		batches = [][]string{members}
	} else {
		full := len(members) / maxSize
		for i := 0; i < full; i++ {
			batches = append(batches, members[i*maxSize:(i+1)*maxSize])
		}
		rest := members[full*maxSize:]
		switch {
		case len(rest) == 1:
			last := len(batches) - 1
			batches[last] = append(batches[last][:maxSize:maxSize], rest[0])
		case len(rest) > 1:
			batches = append(batches, rest)
		}
	}

	units := make([]model.Unit, len(batches))
	for i, batch := range batches {
		cp := make([]string, len(batch))
		copy(cp, batch)
		units[i] = model.Unit{
			Topic:   topic,
			Kind:    model.KindGroup,
			Members: cp,
			Index:   i + 1,
			Total:   len(batches),
		}
	}
	return units
}

// BatchBucket batches whatever is left in the bucket's group set.
func BatchBucket(b *model.Bucket, maxSize int) []model.Unit {
	return Batch(b.Topic, b.Group.Members(), maxSize)
}
