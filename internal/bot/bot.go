package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/user/discord-voicebot/internal/audio"
	"github.com/user/discord-voicebot/internal/capture"
	"github.com/user/discord-voicebot/internal/config"
	"github.com/user/discord-voicebot/internal/dialogue"
	"github.com/user/discord-voicebot/internal/history"
	"github.com/user/discord-voicebot/internal/stt/wit"
)

type Bot struct {
	config      *config.Config
	session     *discordgo.Session
	dialogue    *dialogue.Session
	coordinator *capture.Coordinator
	ingestor    *history.Ingestor

	// Active voice connections, one per guild
	voiceConns map[string]*discordgo.VoiceConnection
	mutex      sync.RWMutex

	seedOnce sync.Once
}

func NewBot(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	// Create dialogue session
	dlg, err := dialogue.NewSession(context.Background(), cfg.GenAIAPIKey, cfg.GenAIModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialogue session: %w", err)
	}

	// Create the capture pipeline
	recorder := audio.NewRecorder(cfg.RecordPath)
	transcriber := wit.NewClient(cfg.WitAPIKey, cfg.WitEndpoint)
	coordinator := capture.NewCoordinator(recorder, transcriber)

	bot := &Bot{
		config:      cfg,
		session:     session,
		dialogue:    dlg,
		coordinator: coordinator,
		voiceConns:  make(map[string]*discordgo.VoiceConnection),
	}

	// Register handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onInteractionCreate)

	return bot, nil
}

func (b *Bot) Start() error {
	if err := b.coordinator.Start(); err != nil {
		return err
	}

	// Open connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	log.Info().Msg("Discord bot started")
	return nil
}

func (b *Bot) Stop() error {
	// Disconnect any active voice connections
	b.mutex.Lock()
	for guildID, conn := range b.voiceConns {
		if err := conn.Disconnect(); err != nil {
			log.Warn().Err(err).Str("guild_id", guildID).Msg("Failed to disconnect voice")
		}
	}
	b.voiceConns = make(map[string]*discordgo.VoiceConnection)
	b.mutex.Unlock()

	// Close Discord session
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}

	b.coordinator.Stop()

	// Close dialogue session
	if b.dialogue != nil {
		b.dialogue.Close()
	}

	log.Info().Msg("Discord bot stopped")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Info().
		Str("username", event.User.Username).
		Int("guilds", len(event.Guilds)).
		Msg("Bot is ready")

	// Seed once, even across gateway reconnects. Commands are registered only
	// after the seed message, so no command can reach the session first.
	b.seedOnce.Do(func() {
		go func() {
			seed := b.ingestHistory(s, event.Guilds)

			if err := b.dialogue.Start(context.Background(), seed); err != nil {
				log.Error().Err(err).Msg("Failed to seed dialogue session")
			}

			b.registerCommands(s)
		}()
	})
}

func (b *Bot) ingestHistory(s *discordgo.Session, guilds []*discordgo.Guild) string {
	b.ingestor = history.NewIngestor(s.State.User.ID, b.config.HistoryLimit)

	var channels []*discordgo.Channel
	for _, guild := range guilds {
		guildChannels, err := s.GuildChannels(guild.ID)
		if err != nil {
			log.Error().Err(err).Str("guild_id", guild.ID).Msg("Failed to list guild channels")
			continue
		}
		channels = append(channels, guildChannels...)
	}

	return b.ingestor.Ingest(s, channels)
}

func (b *Bot) registerCommands(s *discordgo.Session) {
	registered, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", commands)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register commands")
		return
	}
	log.Info().Int("commands", len(registered)).Msg("Registered slash commands")
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}

	// Acknowledge immediately; command work must never block the gateway.
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to defer interaction response")
		return
	}

	name := ic.ApplicationCommandData().Name
	go func() {
		switch name {
		case "generate":
			b.handleGenerate(s, ic)
		case "summariseme":
			b.handleSummariseMe(s, ic)
		case "join":
			b.handleJoin(s, ic)
		case "leave":
			b.handleLeave(s, ic)
		case "transcribe":
			b.handleTranscribe(s, ic)
		default:
			b.followupError(s, ic, fmt.Sprintf("Unknown command: %s", name))
		}
	}()
}

func (b *Bot) followup(s *discordgo.Session, ic *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(ic.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to send followup message")
	}
}

func (b *Bot) followupError(s *discordgo.Session, ic *discordgo.InteractionCreate, message string) {
	b.followup(s, ic, "❌ "+message)
	log.Warn().Str("error", message).Msg("Sent error reply")
}

func (b *Bot) voiceConnection(guildID string) *discordgo.VoiceConnection {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.voiceConns[guildID]
}

// interactionDisplayName resolves the invoking user's display name.
func interactionDisplayName(ic *discordgo.InteractionCreate) string {
	if ic.Member != nil {
		if ic.Member.Nick != "" {
			return ic.Member.Nick
		}
		return ic.Member.User.Username
	}
	if ic.User != nil {
		return ic.User.Username
	}
	return "Unknown"
}
