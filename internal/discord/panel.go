package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dutybot/pkg/utils"
)

const (
	customIDDutyOn  = "duty_on"
	customIDDutyOff = "duty_off"

	activeTitle  = "Aktywni na służbie"
	summaryTitle = "Podsumowanie godzin służby"

	noActiveUsersText = "Nikt aktualnie nie jest na służbie."
	noTotalsText      = "Brak zarejestrowanych godzin."

	embedColor = 0x3498db
)

type activeEntry struct {
	Name    string
	Elapsed time.Duration
}

type summaryEntry struct {
	Name         string
	TotalSeconds int64
}

// renderActiveList formats the currently-on-duty view
func renderActiveList(entries []activeEntry) string {
	if len(entries) == 0 {
		return noActiveUsersText
	}
	var lines []string
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s - %s",
			entry.Name, utils.FormatDuration(int64(entry.Elapsed.Seconds()))))
	}
	return strings.Join(lines, "\n")
}

// renderSummary formats the cumulative-totals view, descending
func renderSummary(entries []summaryEntry) string {
	if len(entries) == 0 {
		return noTotalsText
	}
	var lines []string
	for rank, entry := range entries {
		lines = append(lines, utils.FormatLeaderboardEntry(
			rank+1, entry.Name, utils.FormatHoursMinutes(entry.TotalSeconds)))
	}
	return strings.Join(lines, "\n")
}

func activeEmbed(description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       activeTitle,
		Description: description,
		Color:       embedColor,
	}
}

func summaryEmbed(description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       summaryTitle,
		Description: description,
		Color:       embedColor,
	}
}

func dutyButtons() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Wejdź na służbę",
					Style:    discordgo.SuccessButton,
					CustomID: customIDDutyOn,
				},
				discordgo.Button{
					Label:    "Zejdź ze służby",
					Style:    discordgo.DangerButton,
					CustomID: customIDDutyOff,
				},
			},
		},
	}
}

// RefreshPanels re-renders and pushes both panel messages of a guild. Errors
// are logged, never returned to the caller; a duty operation must not fail
// because a panel message went missing.
func (b *Bot) RefreshPanels(guildID string) {
	if err := b.refreshGuild(guildID); err != nil {
		log.Warn().Err(err).Str("guild", guildID).Msg("panel refresh failed")
	}
}

func (b *Bot) refreshGuild(guildID string) error {
	panel, err := b.repo.GetPanel(guildID)
	if err != nil {
		return err
	}
	if panel == nil || panel.ChannelID == "" {
		return nil
	}

	if panel.ActiveMessageID != "" {
		sessions, err := b.repo.ListSessions(guildID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		var entries []activeEntry
		for _, session := range sessions {
			name, ok := b.memberDisplayName(guildID, session.UserID)
			if !ok {
				continue
			}
			entries = append(entries, activeEntry{Name: name, Elapsed: now.Sub(session.StartTime)})
		}
		err = b.editEmbed(panel.ChannelID, panel.ActiveMessageID, activeEmbed(renderActiveList(entries)))
		if err != nil {
			return err
		}
	}

	if panel.SummaryMessageID != "" {
		stats, err := b.repo.ListTotals(guildID)
		if err != nil {
			return err
		}
		var entries []summaryEntry
		for _, stat := range stats {
			name, ok := b.memberDisplayName(guildID, stat.UserID)
			if !ok {
				continue
			}
			entries = append(entries, summaryEntry{Name: name, TotalSeconds: stat.TotalSeconds})
		}
		err = b.editEmbed(panel.ChannelID, panel.SummaryMessageID, summaryEmbed(renderSummary(entries)))
		if err != nil {
			return err
		}
	}

	return nil
}

// editEmbed pushes one panel message; a deleted message or channel is skipped
func (b *Bot) editEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := b.session.ChannelMessageEditEmbed(channelID, messageID, embed)
	if err != nil {
		if isMissingTarget(err) {
			log.Debug().Str("channel", channelID).Str("message", messageID).
				Msg("panel message gone, skipping")
			return nil
		}
		return fmt.Errorf("failed to edit panel message: %w", err)
	}
	return nil
}

// refreshLoop periodically refreshes every known guild panel until the
// context is cancelled
func (b *Bot) refreshLoop(ctx context.Context) {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.refreshAll()
		}
	}
}

func (b *Bot) refreshAll() {
	sweep := uuid.NewString()

	panels, err := b.repo.ListPanels()
	if err != nil {
		log.Error().Err(err).Str("sweep", sweep).Msg("could not list panels")
		return
	}

	for _, panel := range panels {
		// A panel whose guild is not visible to the bot anymore is skipped
		if _, err := b.session.State.Guild(panel.GuildID); err != nil {
			log.Debug().Str("sweep", sweep).Str("guild", panel.GuildID).
				Msg("guild not in state, skipping panel")
			continue
		}
		if err := b.refreshGuild(panel.GuildID); err != nil {
			log.Warn().Err(err).Str("sweep", sweep).Str("guild", panel.GuildID).
				Msg("panel refresh failed")
		}
	}
}

// AnnounceStart posts a duty start message to the guild's log channel, if one
// is configured. Returns the posted message id so it can be updated on stop.
func (b *Bot) AnnounceStart(guildID, userID string, start time.Time) (string, error) {
	panel, err := b.repo.GetPanel(guildID)
	if err != nil {
		return "", err
	}
	if panel == nil || panel.LogChannelID == "" {
		return "", nil
	}

	content := fmt.Sprintf("🟢 %s wszedł na służbę (%s UTC).",
		utils.FormatUserMention(userID), start.UTC().Format("15:04:05"))
	msg, err := b.session.ChannelMessageSend(panel.LogChannelID, content)
	if err != nil {
		if isMissingTarget(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to send duty log message: %w", err)
	}
	return msg.ID, nil
}

// AnnounceEnd updates the session's duty log message with the elapsed time,
// or posts a new one when the original is gone
func (b *Bot) AnnounceEnd(guildID, userID, logMessageID string, elapsed time.Duration, recalledBy string) {
	panel, err := b.repo.GetPanel(guildID)
	if err != nil {
		log.Warn().Err(err).Str("guild", guildID).Msg("could not load panel for duty log")
		return
	}
	if panel == nil || panel.LogChannelID == "" {
		return
	}

	content := fmt.Sprintf("🔴 %s zszedł ze służby. Czas służby: %s",
		utils.FormatUserMention(userID), utils.FormatDuration(int64(elapsed.Seconds())))
	if recalledBy != "" {
		content += fmt.Sprintf(" (przywołany przez %s)", utils.FormatUserMention(recalledBy))
	}

	if logMessageID != "" {
		if _, err := b.session.ChannelMessageEdit(panel.LogChannelID, logMessageID, content); err == nil {
			return
		} else if !isMissingTarget(err) {
			log.Warn().Err(err).Str("guild", guildID).Msg("could not edit duty log message")
		}
	}

	if _, err := b.session.ChannelMessageSend(panel.LogChannelID, content); err != nil && !isMissingTarget(err) {
		log.Warn().Err(err).Str("guild", guildID).Msg("could not send duty log message")
	}
}
