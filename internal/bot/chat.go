package bot

import (
	"context"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Queue accepts background jobs; *river.Client satisfies it. Every call to
// the generation backend runs inside one of these jobs, so the queue's
// worker count bounds concurrent backend calls.
type Queue interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// ReplyArgs asks for an answer in a chat. Every trigger gets its own job.
type ReplyArgs struct {
	ChatID  int64 `json:"chat_id"`
	Reflect bool  `json:"reflect"`
}

func (ReplyArgs) Kind() string { return "reply" }

func (ReplyArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

type ReplyWorker struct {
	Handler *Handler
	river.WorkerDefaults[ReplyArgs]
}

func (w *ReplyWorker) Work(ctx context.Context, job *river.Job[ReplyArgs]) error {
	w.Handler.respond(ctx, job.Args.ChatID, job.Args.Reflect)
	return nil
}

// ImageArgs carries an image message to be downloaded and described.
type ImageArgs struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Sender    string `json:"sender"`
	Caption   string `json:"caption"`
	FileID    string `json:"file_id"`
	ReplyTo   int    `json:"reply_to"`
}

func (ImageArgs) Kind() string { return "image" }

func (ImageArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

type ImageWorker struct {
	Handler *Handler
	river.WorkerDefaults[ImageArgs]
}

func (w *ImageWorker) Work(ctx context.Context, job *river.Job[ImageArgs]) error {
	w.Handler.processImage(ctx, job.Args)
	return nil
}

// SummaryArgs requests a private summary of the last Count messages.
type SummaryArgs struct {
	ChatID      int64  `json:"chat_id"`
	RequesterID int64  `json:"requester_id"`
	Requester   string `json:"requester"`
	Count       int    `json:"count"`
}

func (SummaryArgs) Kind() string { return "summary" }

func (SummaryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

type SummaryWorker struct {
	Handler *Handler
	river.WorkerDefaults[SummaryArgs]
}

func (w *SummaryWorker) Work(ctx context.Context, job *river.Job[SummaryArgs]) error {
	w.Handler.summarize(ctx, job.Args)
	return nil
}
