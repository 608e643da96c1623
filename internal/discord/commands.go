package discord

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"dutybot/internal/duty"
	"dutybot/pkg/utils"
)

const maxMessageLength = 2000

var adminPermission int64 = discordgo.PermissionAdministrator

var commands = []*discordgo.ApplicationCommand{
	{
		Name:                     "setup_duty",
		Description:              "Ustawia panel służby na wybranym kanale",
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "Kanał, na którym ma się pojawić panel",
				Required:    true,
				ChannelTypes: []discordgo.ChannelType{
					discordgo.ChannelTypeGuildText,
				},
			},
		},
	},
	{
		Name:                     "setup_duty_log",
		Description:              "Ustawia kanał logów służby",
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "Kanał logów",
				Required:    true,
				ChannelTypes: []discordgo.ChannelType{
					discordgo.ChannelTypeGuildText,
				},
			},
		},
	},
	{
		Name:                     "recall_duty",
		Description:              "Przywołuje użytkownika ze służby",
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "Użytkownik do przywołania",
				Required:    true,
			},
		},
	},
	{
		Name:                     "reset_hours",
		Description:              "Resetuje godziny służby jednego lub wszystkich użytkowników",
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "Użytkownik (pomiń, aby zresetować wszystkich)",
				Required:    false,
			},
		},
	},
	{
		Name:                     "set_hours",
		Description:              "Ustawia godziny służby użytkownika",
		DefaultMemberPermissions: &adminPermission,
		Options:                  hoursOptions(),
	},
	{
		Name:                     "add_hours",
		Description:              "Dodaje godziny służby użytkownikowi",
		DefaultMemberPermissions: &adminPermission,
		Options:                  hoursOptions(),
	},
	{
		Name:                     "subtract_hours",
		Description:              "Odejmuje godziny służby użytkownikowi",
		DefaultMemberPermissions: &adminPermission,
		Options:                  hoursOptions(),
	},
	{
		Name:                     "show_duty_logs",
		Description:              "Pokazuje ostatnie logi służby",
		DefaultMemberPermissions: &adminPermission,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "limit",
				Description: "Liczba wpisów (domyślnie 10)",
				Required:    false,
			},
		},
	},
}

func hoursOptions() []*discordgo.ApplicationCommandOption {
	var zero float64
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "Użytkownik",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "hours",
			Description: "Godziny",
			Required:    true,
			MinValue:    &zero,
		},
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "minutes",
			Description: "Minuty",
			Required:    false,
			MinValue:    &zero,
		},
	}
}

// interactionCreate dispatches slash commands and button presses
func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	// Duty state is scoped per guild; there is nothing to do in DMs
	if i.GuildID == "" || i.Member == nil {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		switch i.ApplicationCommandData().Name {
		case "setup_duty":
			b.handleSetupDuty(s, i)
		case "setup_duty_log":
			b.handleSetupDutyLog(s, i)
		case "recall_duty":
			b.handleRecallDuty(s, i)
		case "reset_hours":
			b.handleResetHours(s, i)
		case "set_hours":
			b.handleSetHours(s, i)
		case "add_hours":
			b.handleAdjustHours(s, i, false)
		case "subtract_hours":
			b.handleAdjustHours(s, i, true)
		case "show_duty_logs":
			b.handleShowDutyLogs(s, i)
		}
	case discordgo.InteractionMessageComponent:
		switch i.MessageComponentData().CustomID {
		case customIDDutyOn:
			b.handleDutyOn(s, i)
		case customIDDutyOff:
			b.handleDutyOff(s, i)
		}
	}
}

func (b *Bot) handleDutyOn(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := b.manager.StartDuty(i.GuildID, i.Member.User.ID)
	switch {
	case errors.Is(err, duty.ErrAlreadyOnDuty):
		respond(s, i, "Jesteś już na służbie!")
	case err != nil:
		log.Error().Err(err).Str("guild", i.GuildID).Str("user", i.Member.User.ID).
			Msg("duty start failed")
		respond(s, i, "Wystąpił błąd podczas rozpoczynania służby.")
	default:
		respond(s, i, "Wszedłeś na służbę.")
	}
}

func (b *Bot) handleDutyOff(s *discordgo.Session, i *discordgo.InteractionCreate) {
	elapsed, err := b.manager.StopDuty(i.GuildID, i.Member.User.ID)
	switch {
	case errors.Is(err, duty.ErrNotOnDuty):
		respond(s, i, "Nie jesteś na służbie!")
	case err != nil:
		log.Error().Err(err).Str("guild", i.GuildID).Str("user", i.Member.User.ID).
			Msg("duty stop failed")
		respond(s, i, "Wystąpił błąd podczas kończenia służby.")
	default:
		respond(s, i, fmt.Sprintf("Zszedłeś ze służby. Czas służby: %s",
			utils.FormatDuration(int64(elapsed.Seconds()))))
	}
}

func (b *Bot) handleSetupDuty(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channel := i.ApplicationCommandData().Options[0].ChannelValue(s)
	if channel == nil {
		respond(s, i, "Nie znaleziono wybranego kanału.")
		return
	}

	// Sending the two panel messages can take a moment, so acknowledge first
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Warn().Err(err).Msg("could not acknowledge interaction, it may have expired")
		return
	}

	activeMsg, err := s.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{activeEmbed(noActiveUsersText)},
		Components: dutyButtons(),
	})
	if err != nil {
		log.Error().Err(err).Str("channel", channel.ID).Msg("could not send active panel message")
		followUp(s, i, "Nie mam uprawnień do wysyłania wiadomości na tym kanale.")
		return
	}

	summaryMsg, err := s.ChannelMessageSendEmbed(channel.ID, summaryEmbed(noTotalsText))
	if err != nil {
		log.Error().Err(err).Str("channel", channel.ID).Msg("could not send summary panel message")
		followUp(s, i, "Nie mam uprawnień do wysyłania wiadomości na tym kanale.")
		return
	}

	if err := b.repo.UpsertPanel(i.GuildID, channel.ID, activeMsg.ID, summaryMsg.ID); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("could not save panel record")
		followUp(s, i, "Wystąpił błąd podczas zapisywania panelu.")
		return
	}

	b.RefreshPanels(i.GuildID)
	followUp(s, i, fmt.Sprintf("Panel służby został pomyślnie ustawiony na kanale %s.",
		utils.FormatChannelMention(channel.ID)))
}

func (b *Bot) handleSetupDutyLog(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channel := i.ApplicationCommandData().Options[0].ChannelValue(s)
	if channel == nil {
		respond(s, i, "Nie znaleziono wybranego kanału.")
		return
	}

	if err := b.repo.SetLogChannel(i.GuildID, channel.ID); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("could not save log channel")
		respond(s, i, "Wystąpił błąd podczas zapisywania kanału logów.")
		return
	}

	respond(s, i, fmt.Sprintf("Kanał logów służby został ustawiony na %s.",
		utils.FormatChannelMention(channel.ID)))
}

func (b *Bot) handleRecallDuty(s *discordgo.Session, i *discordgo.InteractionCreate) {
	target := i.ApplicationCommandData().Options[0].UserValue(s)
	if target == nil {
		respond(s, i, "Nie znaleziono wybranego użytkownika.")
		return
	}

	elapsed, err := b.manager.RecallDuty(i.GuildID, i.Member.User.ID, target.ID)
	switch {
	case errors.Is(err, duty.ErrNotOnDuty):
		respond(s, i, fmt.Sprintf("%s nie jest na służbie.", utils.FormatUserMention(target.ID)))
	case err != nil:
		log.Error().Err(err).Str("guild", i.GuildID).Str("target", target.ID).
			Msg("duty recall failed")
		respond(s, i, "Wystąpił błąd podczas przywoływania ze służby.")
	default:
		respond(s, i, fmt.Sprintf("%s został przywołany ze służby. Czas służby: %s",
			utils.FormatUserMention(target.ID), utils.FormatDuration(int64(elapsed.Seconds()))))
	}
}

func (b *Bot) handleResetHours(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		if err := b.manager.ResetAllHours(i.GuildID, i.Member.User.ID); err != nil {
			log.Error().Err(err).Str("guild", i.GuildID).Msg("hours reset failed")
			respond(s, i, "Wystąpił błąd podczas resetowania godzin.")
			return
		}
		respond(s, i, "Godziny służby wszystkich użytkowników zostały zresetowane.")
		return
	}

	target := opts[0].UserValue(s)
	if target == nil {
		respond(s, i, "Nie znaleziono wybranego użytkownika.")
		return
	}
	if err := b.manager.ResetHours(i.GuildID, i.Member.User.ID, target.ID); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Str("target", target.ID).
			Msg("hours reset failed")
		respond(s, i, "Wystąpił błąd podczas resetowania godzin.")
		return
	}
	respond(s, i, fmt.Sprintf("Godziny służby %s zostały zresetowane.",
		utils.FormatUserMention(target.ID)))
}

func (b *Bot) handleSetHours(s *discordgo.Session, i *discordgo.InteractionCreate) {
	target, seconds, ok := parseHours(s, i)
	if !ok {
		respond(s, i, "Nie znaleziono wybranego użytkownika.")
		return
	}

	if err := b.manager.SetHours(i.GuildID, i.Member.User.ID, target.ID, seconds); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Str("target", target.ID).
			Msg("hours set failed")
		respond(s, i, "Wystąpił błąd podczas ustawiania godzin.")
		return
	}
	respond(s, i, fmt.Sprintf("Godziny służby %s ustawione na %s.",
		utils.FormatUserMention(target.ID), utils.FormatDuration(seconds)))
}

func (b *Bot) handleAdjustHours(s *discordgo.Session, i *discordgo.InteractionCreate, subtract bool) {
	target, seconds, ok := parseHours(s, i)
	if !ok {
		respond(s, i, "Nie znaleziono wybranego użytkownika.")
		return
	}

	var err error
	if subtract {
		err = b.manager.SubtractHours(i.GuildID, i.Member.User.ID, target.ID, seconds)
	} else {
		err = b.manager.AddHours(i.GuildID, i.Member.User.ID, target.ID, seconds)
	}
	if err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Str("target", target.ID).
			Msg("hours adjustment failed")
		respond(s, i, "Wystąpił błąd podczas zmiany godzin.")
		return
	}

	verb := "Dodano"
	if subtract {
		verb = "Odjęto"
	}
	respond(s, i, fmt.Sprintf("%s %s godzin służby dla %s.",
		verb, utils.FormatDuration(seconds), utils.FormatUserMention(target.ID)))
}

func (b *Bot) handleShowDutyLogs(s *discordgo.Session, i *discordgo.InteractionCreate) {
	limit := 10
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "limit" && opt.IntValue() > 0 {
			limit = int(opt.IntValue())
		}
	}

	entries, err := b.repo.ListLogs(i.GuildID, limit)
	if err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("could not list duty logs")
		respond(s, i, "Wystąpił błąd podczas pobierania logów.")
		return
	}
	if len(entries) == 0 {
		respond(s, i, "Brak logów służby.")
		return
	}

	var lines []string
	for _, entry := range entries {
		line := fmt.Sprintf("`%s` %s — %s",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			utils.FormatUserMention(entry.UserID),
			entry.Action)
		if entry.Details != "" {
			line += fmt.Sprintf(" (%s)", entry.Details)
		}
		lines = append(lines, line)
	}

	respond(s, i, utils.TruncateString(strings.Join(lines, "\n"), maxMessageLength))
}

// parseHours reads the target user and the hours/minutes options of the
// hour-adjustment commands
func parseHours(s *discordgo.Session, i *discordgo.InteractionCreate) (*discordgo.User, int64, bool) {
	var target *discordgo.User
	var hours, minutes int64
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "user":
			target = opt.UserValue(s)
		case "hours":
			hours = opt.IntValue()
		case "minutes":
			minutes = opt.IntValue()
		}
	}
	if target == nil {
		return nil, 0, false
	}
	return target, hours*3600 + minutes*60, true
}

// respond sends an ephemeral reply. A failure here usually means the
// interaction acknowledgement window has closed; there is nothing more to do
// than log it.
func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("could not respond to interaction, it may have expired")
	}
}

// followUp completes a deferred interaction with an ephemeral message
func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		log.Warn().Err(err).Msg("could not send interaction follow-up")
	}
}
