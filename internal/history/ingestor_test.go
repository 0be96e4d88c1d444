package history

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	// messages per channel, newest first, as the REST API returns them
	messages map[string][]*discordgo.Message
	failing  map[string]bool

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failing[channelID] {
		return nil, errors.New("Missing Access")
	}

	msgs := f.messages[channelID]

	start := 0
	if beforeID != "" {
		for i, m := range msgs {
			if m.ID == beforeID {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	if start >= len(msgs) {
		return nil, nil
	}
	return msgs[start:end], nil
}

func msg(id, authorID, author, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:      id,
		Content: content,
		Author:  &discordgo.User{ID: authorID, Username: author},
	}
}

func textChannel(id string) *discordgo.Channel {
	return &discordgo.Channel{ID: id, Name: id, Type: discordgo.ChannelTypeGuildText}
}

const botID = "bot-1"

func TestIngestFiltersMessages(t *testing.T) {
	src := &fakeSource{messages: map[string][]*discordgo.Message{
		"general": {
			msg("5", "u2", "Bob", "hi there"),
			msg("4", botID, "VoiceBot", "I am the bot"),
			msg("3", "u3", "Deleted User", "ghost message"),
			msg("2", "u1", "Alice", ""),
			msg("1", "u1", "Alice", "hello"),
		},
	}}

	ing := NewIngestor(botID, 1000)
	seed := ing.Ingest(src, []*discordgo.Channel{textChannel("general")})

	assert.Equal(t, "Bob: hi there\nAlice: hello", seed)
}

func TestIngestKeepsChannelAndFetchOrder(t *testing.T) {
	src := &fakeSource{messages: map[string][]*discordgo.Message{
		"first": {
			msg("2", "u1", "Alice", "newest in first"),
			msg("1", "u1", "Alice", "oldest in first"),
		},
		"second": {
			msg("9", "u2", "Bob", "only in second"),
		},
	}}

	ing := NewIngestor(botID, 1000)
	seed := ing.Ingest(src, []*discordgo.Channel{textChannel("first"), textChannel("second")})

	assert.Equal(t, "Alice: newest in first\nAlice: oldest in first\nBob: only in second", seed)
}

func TestIngestSkipsFailingChannel(t *testing.T) {
	src := &fakeSource{
		messages: map[string][]*discordgo.Message{
			"open": {msg("1", "u1", "Alice", "hello")},
		},
		failing: map[string]bool{"locked": true},
	}

	ing := NewIngestor(botID, 1000)
	seed := ing.Ingest(src, []*discordgo.Channel{textChannel("locked"), textChannel("open")})

	assert.Equal(t, "Alice: hello", seed)
}

func TestIngestIgnoresNonTextChannels(t *testing.T) {
	src := &fakeSource{messages: map[string][]*discordgo.Message{
		"voice": {msg("1", "u1", "Alice", "should not appear")},
	}}

	voice := &discordgo.Channel{ID: "voice", Type: discordgo.ChannelTypeGuildVoice}
	ing := NewIngestor(botID, 1000)

	assert.Empty(t, ing.Ingest(src, []*discordgo.Channel{voice}))
	assert.Zero(t, src.calls)
}

func TestIngestPaginatesUpToLimit(t *testing.T) {
	var msgs []*discordgo.Message
	for i := 250; i > 0; i-- {
		msgs = append(msgs, msg(fmt.Sprintf("%d", i), "u1", "Alice", fmt.Sprintf("message %d", i)))
	}
	src := &fakeSource{messages: map[string][]*discordgo.Message{"general": msgs}}

	ing := NewIngestor(botID, 150)
	seed := ing.Ingest(src, []*discordgo.Channel{textChannel("general")})

	require.NotEmpty(t, seed)
	lines := 1
	for _, r := range seed {
		if r == '\n' {
			lines++
		}
	}
	assert.Equal(t, 150, lines)

	// 150 messages at a 100-message page size means exactly two fetches.
	assert.Equal(t, 2, src.calls)
}

func TestIngestPrefersMemberNick(t *testing.T) {
	m := msg("1", "u1", "alice_underscore", "hello")
	m.Member = &discordgo.Member{Nick: "Alice"}
	src := &fakeSource{messages: map[string][]*discordgo.Message{"general": {m}}}

	ing := NewIngestor(botID, 1000)
	assert.Equal(t, "Alice: hello", ing.Ingest(src, []*discordgo.Channel{textChannel("general")}))
}

func TestIngestEmptyHistoryYieldsEmptySeed(t *testing.T) {
	src := &fakeSource{messages: map[string][]*discordgo.Message{}}

	ing := NewIngestor(botID, 1000)
	assert.Empty(t, ing.Ingest(src, []*discordgo.Channel{textChannel("general")}))
}
