package dialogue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []string

	active int32
	max    int32
	delay  time.Duration

	reply string
	err   error
	resp  *genai.GenerateContentResponse
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: parts}},
		},
	}
}

func (f *fakeSender) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	n := atomic.AddInt32(&f.active, 1)
	if n > atomic.LoadInt32(&f.max) {
		atomic.StoreInt32(&f.max, n)
	}
	time.Sleep(f.delay)
	atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	for _, part := range parts {
		if text, ok := part.(genai.Text); ok {
			f.messages = append(f.messages, string(text))
		}
	}
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return textResponse(genai.Text(f.reply)), nil
}

func newTestSession(sender *fakeSender) *Session {
	return &Session{chat: sender}
}

func TestStartEmptySeedSendsNothing(t *testing.T) {
	sender := &fakeSender{reply: "hello"}
	s := newTestSession(sender)

	require.NoError(t, s.Start(context.Background(), ""))
	assert.Empty(t, sender.messages)
}

func TestStartSeedsExactlyOnceBeforeTraffic(t *testing.T) {
	sender := &fakeSender{reply: "ok"}
	s := newTestSession(sender)

	seed := "Alice: hello\nBob: hi there"
	require.NoError(t, s.Start(context.Background(), seed))

	reply, err := s.Send(context.Background(), "What did Alice say?")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	require.Len(t, sender.messages, 2)
	assert.Equal(t, seed, sender.messages[0])
	assert.Equal(t, "What did Alice say?", sender.messages[1])
}

func TestSendConcatenatesReplyParts(t *testing.T) {
	sender := &fakeSender{resp: textResponse(genai.Text("one "), genai.Text("two"))}
	s := newTestSession(sender)

	reply, err := s.Send(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "one two", reply)
}

func TestSendModelErrorLeavesSessionUsable(t *testing.T) {
	sender := &fakeSender{err: errors.New("quota exhausted")}
	s := newTestSession(sender)

	_, err := s.Send(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelService)

	sender.err = nil
	sender.reply = "recovered"
	reply, err := s.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
}

func TestSendEmptyCandidatesIsModelError(t *testing.T) {
	sender := &fakeSender{resp: &genai.GenerateContentResponse{}}
	s := newTestSession(sender)

	_, err := s.Send(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrModelService)
}

func TestSendsNeverInterleave(t *testing.T) {
	sender := &fakeSender{reply: "ok", delay: 5 * time.Millisecond}
	s := newTestSession(sender)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Send(context.Background(), "prompt")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.max))
	assert.Len(t, sender.messages, 8)
}
