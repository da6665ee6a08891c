package conversation

import "sync"

// SentRef identifies a message the bot itself sent. Telegram message ids
// are only unique inside one chat.
type SentRef struct {
	ChatID    int64
	MessageID int
}

// SentRing remembers the most recent outbound messages for reply-chain
// detection.
type SentRing struct {
	mu    sync.Mutex
	ring  *Ring[SentRef]
	index map[SentRef]int
}

func NewSentRing(capacity int) *SentRing {
	return &SentRing{
		ring:  NewRing[SentRef](capacity),
		index: make(map[SentRef]int, capacity),
	}
}

func (s *SentRing) Record(ref SentRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index[ref]++
	evicted, ok := s.ring.Push(ref)
	if !ok {
		return
	}
	if s.index[evicted] <= 1 {
		delete(s.index, evicted)
	} else {
		s.index[evicted]--
	}
}

func (s *SentRing) Contains(ref SentRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index[ref] > 0
}
