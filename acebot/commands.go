package acebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

const (
	// docsHintMinLength is the minimum content length (prefix included)
	// before an unrecognized command gets a docs hint.
	docsHintMinLength = 3

	docsHintMessage = "If you meant to bring up the docs, please do " +
		"`.docs <query>` instead."
)

// Command is a prefix-invoked bot command.
//
// Fields:
//   - Name: The primary command name, matched after the prefix.
//   - Aliases: Alternate names for the command.
//   - Usage: Argument syntax shown in malformed-argument replies.
//   - Description: One-line description, shown in help output.
//   - OwnerOnly: Restricts the command to the configured owner.
//   - RequireEmbedLinks: Requires the bot to hold the Embed Links
//     permission in the invoking channel.
//   - Disabled: Disables the command without unregistering it.
//   - Cooldown: Minimum delay between invocations, per user.
//   - Run: The command implementation.
type Command struct {
	Name              string
	Aliases           []string
	Usage             string
	Description       string
	OwnerOnly         bool
	RequireEmbedLinks bool
	Disabled          bool
	Cooldown          time.Duration
	Run               func(ctx context.Context, cc *CommandContext) error
}

// CommandContext carries everything a command invocation needs: the
// originating message, the resolved user record, the raw argument
// string, and reply helpers.
type CommandContext struct {
	Bot     *AceBot
	Session DiscordSessionHandler
	Message *discordgo.MessageCreate
	User    *User
	Args    string
	Logger  *slog.Logger
}

// Reply sends a plain text reply to the invoking message's channel.
func (cc *CommandContext) Reply(ctx context.Context, content string) error {
	_, err := cc.Session.ChannelMessageSend(
		cc.Message.ChannelID,
		truncate(content, discordMaxMessageLength),
		discordgo.WithContext(ctx),
	)
	return err
}

// SendEmbed sends a single embed to the invoking message's channel.
func (cc *CommandContext) SendEmbed(
	ctx context.Context,
	embed *discordgo.MessageEmbed,
) error {
	_, err := cc.Session.ChannelMessageSendEmbed(
		cc.Message.ChannelID, embed, discordgo.WithContext(ctx),
	)
	return err
}

// CommandRegistry holds registered commands and dispatches incoming
// messages to them. Lookup is by name or alias, case-insensitive.
type CommandRegistry struct {
	bot    *AceBot
	logger *slog.Logger

	mu       sync.RWMutex
	commands map[string]*Command
	byName   []*Command

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func NewCommandRegistry(bot *AceBot, logger *slog.Logger) *CommandRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandRegistry{
		bot:      bot,
		logger:   logger.With(loggerNameKey, "commands"),
		commands: map[string]*Command{},
		limiters: map[string]*rate.Limiter{},
	}
}

// Register adds a command under its name and all aliases. Duplicate
// names are a registration error.
func (r *CommandRegistry) Register(cmd *Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string{cmd.Name}, cmd.Aliases...)
	for _, name := range names {
		name = strings.ToLower(name)
		if _, exists := r.commands[name]; exists {
			return fmt.Errorf("command %q already registered", name)
		}
	}
	for _, name := range names {
		r.commands[strings.ToLower(name)] = cmd
	}
	r.byName = append(r.byName, cmd)
	return nil
}

// Lookup returns the command registered under the given name or alias.
func (r *CommandRegistry) Lookup(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[strings.ToLower(name)]
}

// Commands returns all registered commands, in registration order.
func (r *CommandRegistry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Command{}, r.byName...)
}

// limiter returns the rate limiter for a user+command pair, creating it
// on first use.
func (r *CommandRegistry) limiter(userID string, cmd *Command) *rate.Limiter {
	r.limiterMu.Lock()
	defer r.limiterMu.Unlock()

	key := userID + ":" + cmd.Name
	limiter, ok := r.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(
			rate.Every(cmd.Cooldown), 1,
		)
		r.limiters[key] = limiter
	}
	return limiter
}

// HandleMessage filters and dispatches one incoming message. Bot
// authors, DMs, non-text channels, unprefixed messages, and ignored
// users are all dropped before command lookup. Unrecognized commands in
// a docs guild get a hint pointing at the docs command.
func (r *CommandRegistry) HandleMessage(
	ctx context.Context,
	m *discordgo.MessageCreate,
) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID == "" {
		return
	}

	prefix := r.bot.config.Discord.CommandPrefix
	if !strings.HasPrefix(m.Content, prefix) {
		return
	}

	channel, err := r.bot.discord.session.Channel(
		m.ChannelID, discordgo.WithContext(ctx),
	)
	if err != nil {
		r.logger.Warn(
			"error fetching channel", tint.Err(err), "channel_id", m.ChannelID,
		)
		return
	}
	if channel.Type != discordgo.ChannelTypeGuildText {
		return
	}

	user, err := r.bot.users.GetOrCreateUser(*m.Author)
	if err != nil {
		r.logger.Error("error loading user", tint.Err(err))
		return
	}
	if user.Ignored {
		r.logger.Debug("dropping message from ignored user", "user", user)
		return
	}
	r.bot.users.TouchLastSeen(user)

	name, args, _ := strings.Cut(strings.TrimPrefix(m.Content, prefix), " ")
	cmd := r.Lookup(name)
	if cmd == nil {
		r.maybeDocsHint(ctx, m)
		return
	}

	cc := &CommandContext{
		Bot:     r.bot,
		Session: r.bot.discord.session,
		Message: m,
		User:    user,
		Args:    strings.TrimSpace(args),
		Logger: r.logger.With(
			"command", cmd.Name,
			"user", user,
		),
	}
	r.runCommand(ctx, cmd, cc)
}

// maybeDocsHint replies with a pointer to the docs command when an
// unrecognized command arrives in a configured docs guild. Very short
// content and bare runs of prefix characters stay silent; those are
// usually typos or ellipses, not lookup attempts.
func (r *CommandRegistry) maybeDocsHint(
	ctx context.Context,
	m *discordgo.MessageCreate,
) {
	var inDocsGuild bool
	for _, guildID := range r.bot.config.Discord.DocsGuildIDs {
		if guildID == m.GuildID {
			inDocsGuild = true
			break
		}
	}
	if !inDocsGuild {
		return
	}
	if len(m.Content) <= docsHintMinLength {
		return
	}
	prefix := r.bot.config.Discord.CommandPrefix
	if strings.Trim(m.Content, prefix) == "" {
		return
	}
	if _, err := r.bot.discord.session.ChannelMessageSendReply(
		m.ChannelID,
		docsHintMessage,
		m.Reference(),
		discordgo.WithContext(ctx),
	); err != nil {
		r.logger.Warn("error sending docs hint", tint.Err(err))
	}
}

// runCommand applies the command's gate checks (disabled, owner-only,
// cooldown, bot permissions), runs it, and maps any error to a user
// reply.
func (r *CommandRegistry) runCommand(
	ctx context.Context,
	cmd *Command,
	cc *CommandContext,
) {
	r.bot.metricCommandsHandled.Add(1)

	err := r.checkCommand(ctx, cmd, cc)
	if err == nil {
		cc.Logger.Info("running command", messageLogAttrs(*cc.Message)...)
		err = cmd.Run(ctx, cc)
	}
	if err != nil {
		r.respondCommandError(ctx, cmd, cc, err)
	}
}

func (r *CommandRegistry) checkCommand(
	ctx context.Context,
	cmd *Command,
	cc *CommandContext,
) error {
	if cmd.Disabled {
		return ErrDisabledCommand
	}
	if cmd.OwnerOnly && cc.User.ID != r.bot.config.Discord.OwnerID {
		return ErrPermissionDenied
	}
	if cmd.Cooldown > 0 && !r.limiter(cc.User.ID, cmd).Allow() {
		return ErrCooldown
	}
	if cmd.RequireEmbedLinks {
		botUserID := r.bot.discord.botUserID()
		perms, err := cc.Session.UserChannelPermissions(
			botUserID, cc.Message.ChannelID, discordgo.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("error checking channel permissions: %w", err)
		}
		if perms&discordgo.PermissionEmbedLinks == 0 {
			return ErrBotPermissionDenied
		}
	}
	return nil
}

// respondCommandError maps a command error to the reply the user sees.
// Known error kinds get their fixed message; malformed arguments get the
// command usage appended. Anything else is logged with a stack trace and
// gets a generic failure reply.
func (r *CommandRegistry) respondCommandError(
	ctx context.Context,
	cmd *Command,
	cc *CommandContext,
	err error,
) {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		cc.Logger.Error(
			"unexpected command error",
			tint.Err(err),
			"stack", string(debug.Stack()),
		)
		if replyErr := cc.Reply(
			ctx, "Sorry, something went wrong!",
		); replyErr != nil {
			cc.Logger.Error("error sending error reply", tint.Err(replyErr))
		}
		return
	}

	cc.Logger.Info("command rejected", "kind", cmdErr.Kind, tint.Err(err))

	var content string
	switch cmdErr.Kind {
	case ErrKindMalformedArgument:
		content = fmt.Sprintf(
			"Invalid argument(s) provided.\n```%s%s %s```",
			r.bot.config.Discord.CommandPrefix,
			cmd.Name,
			cmd.Usage,
		)
	case ErrKindCooldown, ErrKindDisabledCommand, ErrKindPermissionDenied:
		content = cmdErr.Message
	default:
		content = cmdErr.Message
	}
	if content == "" {
		content = "Sorry, something went wrong!"
	}
	if replyErr := cc.Reply(ctx, content); replyErr != nil {
		cc.Logger.Error("error sending error reply", tint.Err(replyErr))
	}
}
