package model

// MemberSet is an insertion-ordered set of participant IDs.
type MemberSet struct {
	order []string
	index map[string]struct{}
}

func NewMemberSet(ids ...string) *MemberSet {
	s := &MemberSet{index: make(map[string]struct{})}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *MemberSet) Add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *MemberSet) Remove(id string) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *MemberSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *MemberSet) Len() int { return len(s.order) }

// Members returns a copy in insertion order.
func (s *MemberSet) Members() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Bucket holds the participants of one canonical topic, split by preference.
type Bucket struct {
	Topic    string
	Pairwise *MemberSet
	Group    *MemberSet
}

func NewBucket(topic string) *Bucket {
	return &Bucket{
		Topic:    topic,
		Pairwise: NewMemberSet(),
		Group:    NewMemberSet(),
	}
}
