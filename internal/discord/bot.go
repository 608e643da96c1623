package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"dutybot/internal/duty"
	"dutybot/internal/store"
)

// Bot represents the Discord bot
type Bot struct {
	session  *discordgo.Session
	repo     *store.Repository
	manager  *duty.Manager
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a new Discord bot
func New(token string, repo *store.Repository, manager *duty.Manager, refreshInterval time.Duration) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	bot := &Bot{
		session:  session,
		repo:     repo,
		manager:  manager,
		interval: refreshInterval,
	}

	session.AddHandler(bot.interactionCreate)

	return bot, nil
}

// Start opens the gateway connection, registers the slash commands and starts
// the periodic panel refresh loop
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return fmt.Errorf("failed to register commands: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.refreshLoop(ctx)

	log.Info().Msg("bot is running")
	return nil
}

// Stop stops the refresh loop and closes the gateway connection
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	return b.session.Close()
}

func (b *Bot) registerCommands() error {
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, "", commands)
	return err
}

// memberDisplayName resolves a guild member's display name. The second return
// value is false when the user is no longer resolvable in the guild.
func (b *Bot) memberDisplayName(guildID, userID string) (string, bool) {
	member, err := b.session.State.Member(guildID, userID)
	if err != nil {
		member, err = b.session.GuildMember(guildID, userID)
		if err != nil {
			return "", false
		}
	}
	if member.Nick != "" {
		return member.Nick, true
	}
	if member.User == nil {
		return "", false
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName, true
	}
	return member.User.Username, true
}

// isMissingTarget reports whether err is a Discord REST error meaning the
// message or channel no longer exists or is out of reach
func isMissingTarget(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownMessage,
		discordgo.ErrCodeUnknownChannel,
		discordgo.ErrCodeMissingAccess:
		return true
	}
	return false
}
