package conversation

import (
	"log/slog"

	"valera/pkg/assistant"
)

// Trimmer cuts a history down to the newest messages that fit a token
// budget.
type Trimmer struct {
	primary  Estimator
	fallback Estimator
	logger   *slog.Logger
}

// NewTrimmer returns a Trimmer counting with primary. A nil primary means
// every call uses the character fallback.
func NewTrimmer(primary Estimator, logger *slog.Logger) *Trimmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trimmer{
		primary:  primary,
		fallback: FallbackEstimator{},
		logger:   logger,
	}
}

// Trim returns the longest suffix of messages whose estimated cost does not
// exceed budget. Walking from the newest message backward, it stops at the
// first message that does not fit.
func (t *Trimmer) Trim(messages []assistant.Message, budget int) []assistant.Message {
	if len(messages) == 0 {
		return []assistant.Message{}
	}

	costs := t.costs(messages)

	start := len(messages)
	total := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if total+costs[i] > budget {
			break
		}
		total += costs[i]
		start = i
	}

	result := make([]assistant.Message, len(messages)-start)
	copy(result, messages[start:])
	return result
}

// costs estimates every message with one strategy. If the primary estimator
// fails on any message, all of them are recounted with the fallback.
func (t *Trimmer) costs(messages []assistant.Message) []int {
	costs := make([]int, len(messages))

	if t.primary != nil {
		ok := true
		for i, message := range messages {
			n, err := t.primary.Count(message.Content)
			if err != nil {
				t.logger.Warn("Token estimator failed, using character fallback", slog.Any("error", err))
				ok = false
				break
			}
			costs[i] = n
		}
		if ok {
			return costs
		}
	}

	for i, message := range messages {
		// the fallback never fails
		costs[i], _ = t.fallback.Count(message.Content)
	}
	return costs
}

// Cost reports the estimated cost of messages under the same rules as Trim.
func (t *Trimmer) Cost(messages []assistant.Message) int {
	total := 0
	for _, c := range t.costs(messages) {
		total += c
	}
	return total
}
