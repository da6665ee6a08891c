package conversation

import (
	"sync"

	"valera/pkg/assistant"
)

const (
	DefaultContextSize = 100
	DefaultSentSize    = 100
)

// Store keeps a bounded rolling history per chat plus the ring of
// messages the bot has sent. Histories live for the process lifetime.
type Store struct {
	mu       sync.Mutex
	capacity int
	chats    map[int64]*Ring[entry]
	sent     *SentRing
}

// entry is one history line. A reserved entry holds the place of a
// message whose content is still being produced.
type entry struct {
	message   assistant.Message
	messageID int
	reserved  bool
}

func NewStore(contextSize, sentSize int) *Store {
	if contextSize < 1 {
		contextSize = DefaultContextSize
	}
	if sentSize < 1 {
		sentSize = DefaultSentSize
	}
	return &Store{
		capacity: contextSize,
		chats:    make(map[int64]*Ring[entry]),
		sent:     NewSentRing(sentSize),
	}
}

func (s *Store) chat(chatID int64) *Ring[entry] {
	c, ok := s.chats[chatID]
	if !ok {
		c = NewRing[entry](s.capacity)
		s.chats[chatID] = c
	}
	return c
}

// Append adds message to the chat history, evicting the oldest entry
// when the history is full.
func (s *Store) Append(chatID int64, message assistant.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat(chatID).Push(entry{message: message})
}

// Reserve appends placeholder as the history entry of an inbound message
// whose final content arrives later through Fill.
func (s *Store) Reserve(chatID int64, messageID int, placeholder assistant.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat(chatID).Push(entry{message: placeholder, messageID: messageID, reserved: true})
}

// Fill replaces a reserved entry in place, keeping its position. It
// reports false when the entry was evicted or the history was cleared.
func (s *Store) Fill(chatID int64, messageID int, message assistant.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return false
	}
	return c.ReplaceLast(func(e entry) bool {
		return e.reserved && e.messageID == messageID
	}, entry{message: message})
}

// Get returns a snapshot of the chat history, oldest first.
func (s *Store) Get(chatID int64) []assistant.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return []assistant.Message{}
	}
	entries := c.Slice()
	messages := make([]assistant.Message, len(entries))
	for i, e := range entries {
		messages[i] = e.message
	}
	return messages
}

func (s *Store) Len(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return 0
	}
	return c.Len()
}

// Clear drops the chat history. The chat itself stays known.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat(chatID).Reset()
}

func (s *Store) RecordSent(ref SentRef) {
	s.sent.Record(ref)
}

func (s *Store) WasSent(ref SentRef) bool {
	return s.sent.Contains(ref)
}
