package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

var integerOptionMinValue = 1.0

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "generate",
		Description: "Generate a response based on the input text",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "text",
				Description: "The input text for the model",
				Required:    true,
			},
		},
	},
	{
		Name:        "summariseme",
		Description: "Summarise the attitude of the invoking user",
	},
	{
		Name:        "join",
		Description: "Join your current voice channel",
	},
	{
		Name:        "leave",
		Description: "Leave the voice channel",
	},
	{
		Name:        "transcribe",
		Description: "Transcribe speech from the voice channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "seconds",
				Description: "Number of seconds to record",
				Required:    true,
				MinValue:    &integerOptionMinValue,
			},
		},
	},
}

func (b *Bot) handleGenerate(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	text := ic.ApplicationCommandData().Options[0].StringValue()

	reply, err := b.dialogue.Send(context.Background(), text)
	if err != nil {
		log.Error().Err(err).Msg("Model call failed")
		b.followupError(s, ic, "Failed to generate a response")
		return
	}

	b.followup(s, ic, reply)
}

func (b *Bot) handleSummariseMe(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	name := interactionDisplayName(ic)
	log.Info().Str("user", name).Msg("Summarising user attitude")

	prompt := fmt.Sprintf("Give the attitude of the user %q", name)
	reply, err := b.dialogue.Send(context.Background(), prompt)
	if err != nil {
		log.Error().Err(err).Msg("Model call failed")
		b.followupError(s, ic, "Failed to generate a summary")
		return
	}

	b.followup(s, ic, reply)
}

func (b *Bot) handleJoin(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	guild, err := s.State.Guild(ic.GuildID)
	if err != nil {
		b.followupError(s, ic, "Failed to get guild information")
		return
	}

	var voiceChannelID string
	for _, voiceState := range guild.VoiceStates {
		if ic.Member != nil && voiceState.UserID == ic.Member.User.ID {
			voiceChannelID = voiceState.ChannelID
			break
		}
	}

	if voiceChannelID == "" {
		b.followupError(s, ic, "You need to be in a voice channel to use this command")
		return
	}

	conn, err := s.ChannelVoiceJoin(ic.GuildID, voiceChannelID, false, false)
	if err != nil {
		b.followupError(s, ic, "Failed to join the voice channel")
		return
	}

	b.mutex.Lock()
	b.voiceConns[ic.GuildID] = conn
	b.mutex.Unlock()

	log.Info().
		Str("guild_id", ic.GuildID).
		Str("channel_id", voiceChannelID).
		Msg("Joined voice channel")

	b.followup(s, ic, fmt.Sprintf("Joined <#%s>", voiceChannelID))
}

func (b *Bot) handleLeave(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	b.mutex.Lock()
	conn := b.voiceConns[ic.GuildID]
	delete(b.voiceConns, ic.GuildID)
	b.mutex.Unlock()

	if conn == nil {
		b.followupError(s, ic, "Not connected to a voice channel in this server")
		return
	}

	if err := conn.Disconnect(); err != nil {
		b.followupError(s, ic, "Failed to disconnect from the voice channel")
		return
	}

	log.Info().Str("guild_id", ic.GuildID).Msg("Left voice channel")
	b.followup(s, ic, "Disconnected from the voice channel")
}

func (b *Bot) handleTranscribe(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if b.voiceConnection(ic.GuildID) == nil {
		b.followupError(s, ic, "Not connected to a voice channel. Use /join first")
		return
	}

	seconds := int(ic.ApplicationCommandData().Options[0].IntValue())
	b.followup(s, ic, fmt.Sprintf("Recording for %d seconds...", seconds))

	text, err := b.coordinator.CaptureAndTranscribe(context.Background(), seconds)
	if err != nil {
		log.Error().Err(err).Msg("Capture failed")
		b.followupError(s, ic, "Failed to transcribe the recording")
		return
	}

	b.followup(s, ic, "You said: "+text)

	reply, err := b.dialogue.Send(context.Background(), text)
	if err != nil {
		log.Error().Err(err).Msg("Model call failed")
		b.followupError(s, ic, "Failed to generate a response to the transcript")
		return
	}

	b.followup(s, ic, reply)
}
