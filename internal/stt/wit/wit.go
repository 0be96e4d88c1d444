package wit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// Event types emitted by the dictation endpoint.
	EventPartial = "PARTIAL_TRANSCRIPTION"
	EventFinal   = "FINAL_TRANSCRIPTION"

	// NoSpeech is returned when a recording contains no final transcription.
	// A silent capture is a valid result, not an error.
	NoSpeech = "No speech detected"
)

// ErrMalformedResponse indicates the response body could not be repaired into
// a parseable event sequence.
var ErrMalformedResponse = errors.New("malformed recognition response")

// ServiceError is a transport failure or non-2xx status from the recognition
// endpoint. Body carries the raw response for diagnostics.
type ServiceError struct {
	Status int
	Body   string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recognition request failed: %v", e.Err)
	}
	return fmt.Sprintf("recognition service error %d: %s", e.Status, e.Body)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Event is one typed fragment of the dictation response.
type Event struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Client calls the wit.ai dictation endpoint. The endpoint streams JSON
// objects concatenated back-to-back rather than a single document, so the
// client repairs the body before parsing.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewClient(apiKey, endpoint string) *Client {
	return &Client{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}
}

// Transcribe posts raw WAV bytes and returns the space-joined final
// transcription text, or NoSpeech when the response carries no final events.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(wav))
	if err != nil {
		return "", &ServiceError{Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ServiceError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("response_body", string(body)).
			Msg("Recognition API error response")
		return "", &ServiceError{Status: resp.StatusCode, Body: string(body)}
	}

	events, err := parseEvents(string(body))
	if err != nil {
		return "", err
	}

	var finals []string
	for _, ev := range events {
		if ev.Type == EventFinal {
			finals = append(finals, ev.Text)
		}
	}

	log.Debug().
		Int("events", len(events)).
		Int("finals", len(finals)).
		Msg("Parsed recognition response")

	if len(finals) == 0 {
		return NoSpeech, nil
	}
	return strings.Join(finals, " "), nil
}

// parseEvents repairs the concatenated response body and decodes it as an
// event array.
func parseEvents(body string) ([]Event, error) {
	repaired := repairBody(body)

	var events []Event
	if err := json.Unmarshal([]byte(repaired), &events); err != nil {
		log.Warn().
			Str("response_body", body).
			Err(err).
			Msg("Failed to parse recognition response")
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return events, nil
}

// repairBody rebuilds valid array JSON from the endpoint's stream of objects.
// Consecutive objects arrive joined by a literal "\n}\r\n{" seam; splitting on
// it and rejoining with "},{" restores the braces the split consumed. The
// trailing replace handles boundary fragments that still carry adjacent
// braces. The seam format is undocumented and observed, not guaranteed.
func repairBody(body string) string {
	objects := strings.Split(strings.TrimSpace(body), "\n}\r\n{")
	repaired := "[" + strings.Join(objects, "},{") + "]"
	return strings.ReplaceAll(repaired, "}{", "},{")
}
