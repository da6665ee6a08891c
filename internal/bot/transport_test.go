package bot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/telebot.v4"
)

type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	sent     []string
	sendErr  error
	failAt   int
	notified []string
	file     []byte
	fileErr  error
}

func (f *fakeAPI) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil && len(f.sent) == f.failAt {
		return nil, f.sendErr
	}
	f.nextID++
	text := what.(string)
	f.sent = append(f.sent, to.Recipient()+":"+text)
	return &telebot.Message{ID: f.nextID, Text: text, Unixtime: 1700000000}, nil
}

func (f *fakeAPI) Notify(to telebot.Recipient, action telebot.ChatAction, _ ...int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, to.Recipient()+":"+string(action))
	return nil
}

func (f *fakeAPI) File(*telebot.File) (io.ReadCloser, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return io.NopCloser(bytes.NewReader(f.file)), nil
}

func newTestTransport(t *testing.T, api *fakeAPI) *TelegramTransport {
	t.Helper()
	return NewTelegramTransport(api, TransportOptions{
		Self:          "@ai_valera",
		MaxImageBytes: 8,
		TempDir:       t.TempDir(),
	}, discardLogger)
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "empty", text: "  \n ", limit: 10, want: nil},
		{name: "short", text: "привет", limit: 10, want: []string{"привет"}},
		{name: "exact", text: "абвгд", limit: 5, want: []string{"абвгд"}},
		{name: "newline", text: "раз два\nтри", limit: 9, want: []string{"раз два", "три"}},
		{name: "space", text: "раз два три", limit: 9, want: []string{"раз два", "три"}},
		{name: "hard", text: "абвгдеёжз", limit: 4, want: []string{"абвг", "деёж", "з"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitMessage(tt.text, tt.limit); !slices.Equal(got, tt.want) {
				t.Errorf("splitMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransportSendSplitsLongText(t *testing.T) {
	api := &fakeAPI{}
	transport := newTestTransport(t, api)

	text := strings.Repeat("слово ", 1000)
	ids, err := transport.Send(context.Background(), -5, text)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !slices.Equal(ids, []int{1, 2}) {
		t.Fatalf("ids = %v, want [1 2]", ids)
	}
	for _, sent := range api.sent {
		if !strings.HasPrefix(sent, "-5:") {
			t.Errorf("sent to wrong chat: %.10q", sent)
		}
	}

	history, err := transport.FetchHistory(context.Background(), -5, 10)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(history) != 2 || history[0].Sender != "@ai_valera" {
		t.Errorf("history = %+v", history)
	}
}

func TestTransportSendEmpty(t *testing.T) {
	transport := newTestTransport(t, &fakeAPI{})

	if _, err := transport.Send(context.Background(), -5, "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestTransportSendPartialFailure(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("bad request"), failAt: 1}
	transport := newTestTransport(t, api)

	ids, err := transport.Send(context.Background(), -5, strings.Repeat("слово ", 1000))
	if err == nil {
		t.Fatal("Send succeeded")
	}
	if !slices.Equal(ids, []int{1}) {
		t.Errorf("ids = %v, want [1]", ids)
	}
}

func TestTransportFetchHistory(t *testing.T) {
	ctx := context.Background()
	transport := newTestTransport(t, &fakeAPI{})

	transport.Observe(Event{ChatID: -5, Sender: "@alice", Text: "первое", Time: time.Unix(1, 0)})
	transport.Observe(Event{ChatID: -5, Sender: "@bob", Media: MediaPhoto})
	transport.Observe(Event{ChatID: -6, Sender: "@bob", Text: "другой чат"})
	if _, err := transport.Send(ctx, -5, "ответ"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	transport.Observe(Event{ChatID: -5, Sender: "@alice", Text: "третье"})

	history, err := transport.FetchHistory(ctx, -5, 2)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	var got []string
	for _, entry := range history {
		got = append(got, entry.Sender+": "+entry.Text)
	}
	if want := []string{"@ai_valera: ответ", "@alice: третье"}; !slices.Equal(got, want) {
		t.Errorf("history = %q, want %q", got, want)
	}

	empty, err := transport.FetchHistory(ctx, 100, 10)
	if err != nil || len(empty) != 0 {
		t.Errorf("unknown chat history = %v, %v", empty, err)
	}
}

func TestTransportMarkRead(t *testing.T) {
	api := &fakeAPI{}
	transport := newTestTransport(t, api)

	if err := transport.MarkRead(context.Background(), -5); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if want := []string{"-5:" + string(telebot.Typing)}; !slices.Equal(api.notified, want) {
		t.Errorf("notified = %q, want %q", api.notified, want)
	}
}

func TestTransportDownload(t *testing.T) {
	tests := []struct {
		name    string
		file    []byte
		fileErr error
		wantErr error
	}{
		{name: "fits", file: []byte("12345678")},
		{name: "too large", file: []byte("123456789"), wantErr: ErrImageTooLarge},
		{name: "fetch error", fileErr: os.ErrNotExist, wantErr: os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newTestTransport(t, &fakeAPI{file: tt.file, fileErr: tt.fileErr})

			data, err := transport.Download(context.Background(), "file-1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("Download: %v", err)
				}
				if !bytes.Equal(data, tt.file) {
					t.Errorf("data = %q, want %q", data, tt.file)
				}
			}

			entries, err := os.ReadDir(transport.options.TempDir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("temp files left behind: %v", entries)
			}
		})
	}
}
