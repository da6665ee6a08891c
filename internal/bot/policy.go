package bot

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"valera/internal/conversation"
)

// minHistoryForRandom is the history length a chat must exceed before the
// bot may speak up unprompted.
const minHistoryForRandom = 5

// Trigger is the reason the bot decided to answer.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerDirect
	TriggerReply
	TriggerKeyword
	TriggerRandom
)

func (t Trigger) String() string {
	switch t {
	case TriggerDirect:
		return "direct"
	case TriggerReply:
		return "reply"
	case TriggerKeyword:
		return "keyword"
	case TriggerRandom:
		return "random"
	default:
		return "none"
	}
}

// Tuning holds the admin-tunable response probability. One value is
// shared by every chat.
type Tuning struct {
	mu          sync.RWMutex
	probability float64
}

func NewTuning(probability float64) *Tuning {
	return &Tuning{probability: probability}
}

func (t *Tuning) Probability() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.probability
}

func (t *Tuning) SetProbability(p float64) error {
	if !(p >= 0 && p <= 1) {
		return fmt.Errorf("probability %v outside [0, 1]", p)
	}
	t.mu.Lock()
	t.probability = p
	t.mu.Unlock()
	return nil
}

// Policy decides whether a stored message should be answered.
type Policy struct {
	keywords []string
	store    *conversation.Store
	tuning   *Tuning
	random   func() float64
}

// NewPolicy returns a Policy matching keywords case-insensitively. A nil
// random uses math/rand.
func NewPolicy(keywords []string, store *conversation.Store, tuning *Tuning, random func() float64) *Policy {
	lowered := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			lowered = append(lowered, keyword)
		}
	}
	if random == nil {
		random = rand.Float64
	}
	return &Policy{
		keywords: lowered,
		store:    store,
		tuning:   tuning,
		random:   random,
	}
}

// EvaluateText decides for a text message already appended to the history.
// Private chats are always answered.
func (p *Policy) EvaluateText(ev Event) Trigger {
	if ev.Private {
		return TriggerDirect
	}
	return p.evaluate(ev.ChatID, ev.ReplyTo, ev.Text)
}

// EvaluateImage decides for an analyzed image; keywords are matched against
// the caption and the generated description.
func (p *Policy) EvaluateImage(chatID int64, replyTo int, caption, description string) Trigger {
	return p.evaluate(chatID, replyTo, caption+" "+description)
}

func (p *Policy) evaluate(chatID int64, replyTo int, text string) Trigger {
	if replyTo != 0 && p.store.WasSent(conversation.SentRef{ChatID: chatID, MessageID: replyTo}) {
		return TriggerReply
	}

	lower := strings.ToLower(text)
	for _, keyword := range p.keywords {
		if strings.Contains(lower, keyword) {
			return TriggerKeyword
		}
	}

	if p.random() < p.tuning.Probability() && p.store.Len(chatID) > minHistoryForRandom {
		return TriggerRandom
	}
	return TriggerNone
}
