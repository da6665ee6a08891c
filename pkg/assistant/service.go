package assistant

import (
	"context"
)

type Service interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error)
	SetTextModel(name string)
	SetVisionModel(name string)
	Status() Status
}
