package bot

import (
	"strings"
	"time"

	"gopkg.in/telebot.v4"
)

// MediaKind classifies the attachment of an inbound message. It is
// resolved once, when the message is received.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaImageDocument
	MediaOther
)

func (k MediaKind) String() string {
	switch k {
	case MediaPhoto:
		return "photo"
	case MediaImageDocument:
		return "image_document"
	case MediaOther:
		return "other"
	default:
		return "none"
	}
}

func (k MediaKind) IsImage() bool {
	return k == MediaPhoto || k == MediaImageDocument
}

// Event is one inbound message, detached from the transport types.
type Event struct {
	ChatID    int64
	MessageID int
	Private   bool
	SenderID  int64
	Sender    string
	// Text is the message text, or the caption for media.
	Text    string
	ReplyTo int
	Media   MediaKind
	FileID  string
	Time    time.Time
}

func newEvent(m *telebot.Message) Event {
	ev := Event{
		ChatID:    m.Chat.ID,
		MessageID: m.ID,
		Private:   m.Chat.Type == telebot.ChatPrivate,
		Sender:    senderName(m.Sender),
		Text:      m.Text,
		Time:      m.Time(),
	}
	if m.Sender != nil {
		ev.SenderID = m.Sender.ID
	}
	if m.ReplyTo != nil {
		ev.ReplyTo = m.ReplyTo.ID
	}

	switch {
	case m.Photo != nil:
		ev.Media = MediaPhoto
		ev.FileID = m.Photo.FileID
		ev.Text = m.Caption
	case m.Document != nil && strings.HasPrefix(m.Document.MIME, "image/"):
		ev.Media = MediaImageDocument
		ev.FileID = m.Document.FileID
		ev.Text = m.Caption
	case m.Document != nil, m.Video != nil, m.Audio != nil, m.Voice != nil,
		m.Sticker != nil, m.Animation != nil, m.VideoNote != nil:
		ev.Media = MediaOther
		ev.Text = m.Caption
	}
	return ev
}

func senderName(user *telebot.User) string {
	if user == nil {
		return "Unknown"
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	if name := strings.TrimSpace(user.FirstName + " " + user.LastName); name != "" {
		return name
	}
	return "Unknown"
}
