package conversation

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const charactersPerToken = 4

var offlineRanks sync.Once

// Estimator returns the estimated backend cost of one message content.
type Estimator interface {
	Count(content string) (int, error)
}

// FallbackEstimator charges one token per four characters, rounded down.
type FallbackEstimator struct{}

func (FallbackEstimator) Count(content string) (int, error) {
	return utf8.RuneCountInString(content) / charactersPerToken, nil
}

// TiktokenEstimator counts BPE tokens with the encoding of the given model.
// The encoding is loaded on first use from the ranks embedded in the
// binary, never from the network; a load failure is sticky.
type TiktokenEstimator struct {
	model string

	once     sync.Once
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
	err      error
}

func NewTiktokenEstimator(model string) *TiktokenEstimator {
	return &TiktokenEstimator{model: model}
}

func (e *TiktokenEstimator) Count(content string) (int, error) {
	e.once.Do(func() {
		offlineRanks.Do(func() {
			tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		})
		e.encoding, e.err = tiktoken.EncodingForModel(e.model)
	})
	if e.err != nil {
		return 0, fmt.Errorf("load encoding for %q: %w", e.model, e.err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(content, nil, nil)), nil
}
