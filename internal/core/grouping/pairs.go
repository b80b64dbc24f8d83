package grouping

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/agenthands/micromatch/internal/core/model"
)

// Pairer forms 1:1 units out of a bucket's pairwise members. Order is random
// on purpose so repeated weeks produce different pairs.
type Pairer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewPairer(rng *rand.Rand) *Pairer {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Pairer{rng: rng}
}

// Pair shuffles the pairwise members and cuts them into consecutive pairs.
// An odd leftover is moved into the bucket's group set. Paired members are
// removed from the group set so grouping for this topic never sees them
// again. A bucket with fewer than two pairwise members is left untouched.
func (p *Pairer) Pair(b *model.Bucket) []model.Unit {
	if b.Pairwise.Len() < 2 {
		return nil
	}
	ids := b.Pairwise.Members()
	b.Pairwise = model.NewMemberSet()

	p.mu.Lock()
	p.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	p.mu.Unlock()

	units := make([]model.Unit, 0, len(ids)/2)
	for i := 0; i+1 < len(ids); i += 2 {
		a, c := ids[i], ids[i+1]
		b.Group.Remove(a)
		b.Group.Remove(c)
		units = append(units, model.Unit{
			Topic:   b.Topic,
			Kind:    model.KindPair,
			Members: []string{a, c},
			Index:   1,
			Total:   1,
		})
	}

	if len(ids)%2 == 1 {
		b.Group.Add(ids[len(ids)-1])
	}

	return units
}
