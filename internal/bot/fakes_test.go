package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"valera/internal/conversation"
	assistantpkg "valera/pkg/assistant"
)

const (
	adminName   = "@boss"
	mainChat    = int64(-100)
	serviceChat = int64(-900)
	groupChat   = int64(-5)
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeTransport struct {
	mu          sync.Mutex
	nextID      int
	sent        []sentMessage
	sendErr     map[int64]error
	history     map[int64][]HistoryEntry
	image       []byte
	downloadErr error
	markReadErr error
	markRead    []int64
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sendErr: make(map[int64]error),
		history: make(map[int64][]HistoryEntry),
		image:   []byte("png"),
	}
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, text string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[chatID]; err != nil {
		return nil, err
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return []int{f.nextID}, nil
}

func (f *fakeTransport) MarkRead(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markRead = append(f.markRead, chatID)
	return f.markReadErr
}

func (f *fakeTransport) FetchHistory(_ context.Context, chatID int64, limit int) ([]HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.history[chatID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (f *fakeTransport) Download(context.Context, string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.image, nil
}

func (f *fakeTransport) sentTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeAssistant struct {
	mu       sync.Mutex
	generate func([]assistantpkg.Message) (string, error)
	analyze  func(prompt string) (string, error)
	calls    [][]assistantpkg.Message
	prompts  []string
	status   assistantpkg.Status
}

func newFakeAssistant() *fakeAssistant {
	return &fakeAssistant{
		generate: func([]assistantpkg.Message) (string, error) { return "ответ", nil },
		analyze:  func(string) (string, error) { return "кот на диване", nil },
		status: assistantpkg.Status{
			Host:        "http://ollama:11434",
			TextModel:   "text-model",
			VisionModel: "vision-model",
			Connected:   true,
		},
	}
}

func (f *fakeAssistant) Generate(_ context.Context, messages []assistantpkg.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages)
	f.mu.Unlock()
	return f.generate(messages)
}

func (f *fakeAssistant) AnalyzeImage(_ context.Context, _ []byte, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.analyze(prompt)
}

func (f *fakeAssistant) SetTextModel(name string)   { f.status.TextModel = name }
func (f *fakeAssistant) SetVisionModel(name string) { f.status.VisionModel = name }
func (f *fakeAssistant) Status() assistantpkg.Status {
	return f.status
}

// inlineQueue runs every inserted job through its worker. By default a
// job runs inside Insert; a deferred queue holds jobs until drain, the way
// a worker picks them up after the poller has moved on.
type inlineQueue struct {
	handler  *Handler
	inserted []river.JobArgs
	pending  []river.JobArgs
	deferred bool
	err      error
}

func (q *inlineQueue) Insert(ctx context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.inserted = append(q.inserted, args)

	if q.deferred {
		q.pending = append(q.pending, args)
	} else if err := q.run(ctx, args); err != nil {
		return nil, err
	}
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{Kind: args.Kind()}}, nil
}

// drain runs pending jobs in insertion order, including jobs inserted
// while it runs.
func (q *inlineQueue) drain(t *testing.T) {
	t.Helper()
	for len(q.pending) > 0 {
		args := q.pending[0]
		q.pending = q.pending[1:]
		if err := q.run(context.Background(), args); err != nil {
			t.Fatalf("job %s: %v", args.Kind(), err)
		}
	}
}

func (q *inlineQueue) run(ctx context.Context, args river.JobArgs) error {
	switch a := args.(type) {
	case ReplyArgs:
		return (&ReplyWorker{Handler: q.handler}).Work(ctx, &river.Job[ReplyArgs]{JobRow: &rivertype.JobRow{}, Args: a})
	case ImageArgs:
		return (&ImageWorker{Handler: q.handler}).Work(ctx, &river.Job[ImageArgs]{JobRow: &rivertype.JobRow{}, Args: a})
	case SummaryArgs:
		return (&SummaryWorker{Handler: q.handler}).Work(ctx, &river.Job[SummaryArgs]{JobRow: &rivertype.JobRow{}, Args: a})
	}
	return fmt.Errorf("no worker for %s", args.Kind())
}

type harness struct {
	handler   *Handler
	store     *conversation.Store
	transport *fakeTransport
	assistant *fakeAssistant
	queue     *inlineQueue
	tuning    *Tuning
	random    float64
}

func newHarness(t *testing.T, options ...func(*Settings)) *harness {
	t.Helper()

	settings := Settings{
		AdminUsername: "boss",
		Keywords:      []string{"Валер", "@ai_valera"},
		MainChatID:    mainChat,
		ServiceChatID: serviceChat,
		TokenLimit:    4096,
		Workers:       1,
	}
	for _, option := range options {
		option(&settings)
	}

	h := &harness{
		store:     conversation.NewStore(100, 100),
		transport: newFakeTransport(),
		assistant: newFakeAssistant(),
		queue:     &inlineQueue{},
		tuning:    NewTuning(0.1),
		random:    0.99,
	}
	h.handler = NewHandler(settings, Deps{
		Store:     h.store,
		Trimmer:   conversation.NewTrimmer(nil, discardLogger),
		Assistant: h.assistant,
		Transport: h.transport,
		Tuning:    h.tuning,
		Queue:     h.queue,
		Random:    func() float64 { return h.random },
		Logger:    discardLogger,
	})
	h.queue.handler = h.handler
	return h
}

func (h *harness) history(chatID int64) []string {
	messages := h.store.Get(chatID)
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}

func (h *harness) serviceMessages() string {
	return strings.Join(h.transport.sentTo(serviceChat), "\n---\n")
}

func textEvent(chatID int64, sender, text string) Event {
	return Event{
		ChatID:   chatID,
		Private:  chatID > 0,
		SenderID: 555,
		Sender:   sender,
		Text:     text,
	}
}
