package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// ErrModelService indicates the language model call failed. The session stays
// usable for subsequent sends.
var ErrModelService = errors.New("model service error")

// messageSender is the slice of *genai.ChatSession the session depends on.
type messageSender interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Session owns the one persistent conversation with the model. Sends are
// serialized by a single mutex held across the send/await-reply pair, so turn
// order on the model side can never interleave.
type Session struct {
	client *genai.Client
	chat   messageSender

	mutex sync.Mutex
}

func NewSession(ctx context.Context, apiKey, model string) (*Session, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Session{
		client: client,
		chat:   client.GenerativeModel(model).StartChat(),
	}, nil
}

// Start seeds the conversation with ingested history. An empty seed sends
// nothing. Must complete before any command traffic reaches Send.
func (s *Session) Start(ctx context.Context, seed string) error {
	if seed == "" {
		log.Info().Msg("Empty history seed, starting blank conversation")
		return nil
	}

	if _, err := s.Send(ctx, seed); err != nil {
		return fmt.Errorf("failed to seed conversation: %w", err)
	}

	log.Info().Int("seed_length", len(seed)).Msg("Conversation seeded from history")
	return nil
}

// Send submits one message and returns the model's reply text.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	resp, err := s.chat.SendMessage(ctx, genai.Text(text))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelService, err)
	}

	reply, err := responseText(resp)
	if err != nil {
		return "", err
	}

	log.Debug().
		Int("prompt_length", len(text)).
		Int("reply_length", len(reply)).
		Msg("Model reply received")

	return reply, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates in response", ErrModelService)
	}

	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			reply.WriteString(string(text))
		}
	}

	return reply.String(), nil
}

func (s *Session) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
