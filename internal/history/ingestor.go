package history

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// deletedUserName is the placeholder display name of removed accounts.
const deletedUserName = "Deleted User"

// REST history pagination page size.
const pageSize = 100

// MessageSource is the channel-history slice of *discordgo.Session.
type MessageSource interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Ingestor linearizes prior channel messages into one seed document for the
// dialogue session. It runs once at startup.
type Ingestor struct {
	botUserID string
	limit     int // max messages fetched per channel
}

func NewIngestor(botUserID string, limit int) *Ingestor {
	return &Ingestor{
		botUserID: botUserID,
		limit:     limit,
	}
}

// Ingest fetches up to the configured cap of recent messages from each text
// channel and renders the usable ones as "{author}: {content}" lines.
// Channels are read concurrently but the document keeps channel order, and
// fetch order within a channel. A channel that cannot be read is logged and
// skipped, never fatal.
func (i *Ingestor) Ingest(src MessageSource, channels []*discordgo.Channel) string {
	perChannel := make([][]string, len(channels))

	var g errgroup.Group
	g.SetLimit(4)

	for idx, channel := range channels {
		idx, channel := idx, channel
		if channel.Type != discordgo.ChannelTypeGuildText {
			continue
		}

		g.Go(func() error {
			lines, err := i.readChannel(src, channel.ID)
			if err != nil {
				log.Error().
					Err(err).
					Str("channel_id", channel.ID).
					Str("channel_name", channel.Name).
					Msg("Error reading history from channel")
				return nil
			}
			perChannel[idx] = lines
			return nil
		})
	}

	g.Wait()

	var lines []string
	for _, channelLines := range perChannel {
		lines = append(lines, channelLines...)
	}

	log.Info().Int("messages", len(lines)).Msg("History ingested")
	return strings.Join(lines, "\n")
}

func (i *Ingestor) readChannel(src MessageSource, channelID string) ([]string, error) {
	var lines []string
	fetched := 0
	beforeID := ""

	// The cap bounds fetched messages, not usable ones, matching a plain
	// bounded history walk.
	for fetched < i.limit {
		limit := pageSize
		if remaining := i.limit - fetched; remaining < limit {
			limit = remaining
		}

		messages, err := src.ChannelMessages(channelID, limit, beforeID, "", "")
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			break
		}

		for _, m := range messages {
			if i.usable(m) {
				lines = append(lines, displayName(m)+": "+m.Content)
			}
		}

		fetched += len(messages)
		beforeID = messages[len(messages)-1].ID
		if len(messages) < limit {
			break
		}
	}

	return lines, nil
}

// usable excludes the bot's own messages, removed accounts, and messages
// without text content.
func (i *Ingestor) usable(m *discordgo.Message) bool {
	if m.Author == nil || m.Author.ID == i.botUserID {
		return false
	}
	if displayName(m) == deletedUserName {
		return false
	}
	return m.Content != ""
}

func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	return m.Author.Username
}
