package acebot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBot(t *testing.T) (*AceBot, *mockDiscordSession) {
	t.Helper()

	db := newTestGormDB(t)
	session := newMockDiscordSession()

	cfg := DefaultConfig()
	cfg.Discord.Token = "test-token"
	cfg.Discord.OwnerID = "owner-id"
	cfg.Discord.DocsGuildIDs = []string{"docs-guild"}

	bot := &AceBot{
		config:     cfg,
		db:         db,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	bot.writeDB = NewDatabase(db, bot.logger, false)
	bot.users = NewUserCache(bot.writeDB, bot.logger)
	bot.store = NewDocsStore(db, bot.logger)
	bot.resolver = NewDocsResolver(bot.store, bot.logger)
	bot.pagers = NewPagerRegistry(bot.logger)
	bot.discord = newDiscord(cfg.Discord)
	bot.discord.session = session
	bot.discord.botUser.Store("bot-user-id")
	bot.feed = NewForumFeed(cfg.Feed, session, nil, bot.logger)
	bot.commands = NewCommandRegistry(bot, bot.logger)
	require.NoError(t, bot.registerCommands())

	return bot, session
}

func testMessage(content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "test-message-id",
			ChannelID: "channel-id",
			GuildID:   "docs-guild",
			Content:   content,
			Author: &discordgo.User{
				ID:       "user-1",
				Username: "someuser",
			},
		},
	}
}

// registerEchoCommand adds a trivial command that records its invocations.
func registerEchoCommand(t *testing.T, bot *AceBot, cmd *Command) *int {
	t.Helper()
	calls := 0
	inner := cmd.Run
	cmd.Run = func(ctx context.Context, cc *CommandContext) error {
		calls++
		if inner != nil {
			return inner(ctx, cc)
		}
		return nil
	}
	require.NoError(t, bot.commands.Register(cmd))
	return &calls
}

func TestHandleMessageDispatch(t *testing.T) {
	ctx := context.Background()
	bot, session := newTestBot(t)
	calls := registerEchoCommand(t, bot, &Command{Name: "ping"})

	bot.commands.HandleMessage(ctx, testMessage(".ping"))
	assert.Equal(t, 1, *calls)
	assert.Equal(t, int64(1), bot.metricCommandsHandled.Load())

	// name lookup is case-insensitive and args are passed through
	withArgs := registerEchoCommand(
		t, bot, &Command{
			Name: "echo",
			Run: func(_ context.Context, cc *CommandContext) error {
				assert.Equal(t, "hello world", cc.Args)
				return nil
			},
		},
	)
	bot.commands.HandleMessage(ctx, testMessage(".ECHO hello world"))
	assert.Equal(t, 1, *withArgs)

	// dispatch created a user record
	count, err := bot.users.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Empty(t, session.messages)
}

func TestHandleMessageFilters(t *testing.T) {
	ctx := context.Background()

	t.Run("bot author", func(t *testing.T) {
		bot, session := newTestBot(t)
		calls := registerEchoCommand(t, bot, &Command{Name: "ping"})
		m := testMessage(".ping")
		m.Author.Bot = true

		bot.commands.HandleMessage(ctx, m)
		assert.Equal(t, 0, *calls)
		assert.Empty(t, session.messages)
	})

	t.Run("direct message", func(t *testing.T) {
		bot, _ := newTestBot(t)
		calls := registerEchoCommand(t, bot, &Command{Name: "ping"})
		m := testMessage(".ping")
		m.GuildID = ""

		bot.commands.HandleMessage(ctx, m)
		assert.Equal(t, 0, *calls)
	})

	t.Run("no prefix", func(t *testing.T) {
		bot, _ := newTestBot(t)
		calls := registerEchoCommand(t, bot, &Command{Name: "ping"})

		bot.commands.HandleMessage(ctx, testMessage("ping"))
		assert.Equal(t, 0, *calls)
	})

	t.Run("non-text channel", func(t *testing.T) {
		bot, session := newTestBot(t)
		calls := registerEchoCommand(t, bot, &Command{Name: "ping"})
		session.channelType = discordgo.ChannelTypeGuildVoice

		bot.commands.HandleMessage(ctx, testMessage(".ping"))
		assert.Equal(t, 0, *calls)
	})

	t.Run("ignored user", func(t *testing.T) {
		bot, session := newTestBot(t)
		calls := registerEchoCommand(t, bot, &Command{Name: "ping"})

		user, err := bot.users.GetOrCreateUser(
			discordgo.User{ID: "user-1", Username: "someuser"},
		)
		require.NoError(t, err)
		require.NoError(t, bot.users.SetIgnored(user.ID, true))

		bot.commands.HandleMessage(ctx, testMessage(".ping"))
		assert.Equal(t, 0, *calls)
		assert.Empty(t, session.messages, "ignored users get no reply at all")
	})
}

func TestDocsHint(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown command in docs guild", func(t *testing.T) {
		bot, session := newTestBot(t)
		bot.commands.HandleMessage(ctx, testMessage(".msgbox"))
		require.Len(t, session.replies, 1)
		assert.Equal(t, docsHintMessage, session.replies[0].content)
	})

	t.Run("outside docs guilds", func(t *testing.T) {
		bot, session := newTestBot(t)
		m := testMessage(".msgbox")
		m.GuildID = "other-guild"
		bot.commands.HandleMessage(ctx, m)
		assert.Empty(t, session.replies)
	})

	t.Run("very short content", func(t *testing.T) {
		bot, session := newTestBot(t)
		bot.commands.HandleMessage(ctx, testMessage(".ab"))
		assert.Empty(t, session.replies)
	})

	t.Run("bare prefix run", func(t *testing.T) {
		bot, session := newTestBot(t)
		bot.commands.HandleMessage(ctx, testMessage("....."))
		assert.Empty(t, session.replies)
	})
}

func TestCommandGates(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		bot, session := newTestBot(t)
		calls := registerEchoCommand(
			t, bot, &Command{Name: "ping", Disabled: true},
		)

		bot.commands.HandleMessage(ctx, testMessage(".ping"))
		assert.Equal(t, 0, *calls)
		require.Len(t, session.messages, 1)
		assert.Equal(t, ErrDisabledCommand.Message, session.messages[0].content)
	})

	t.Run("owner only", func(t *testing.T) {
		bot, session := newTestBot(t)
		calls := registerEchoCommand(
			t, bot, &Command{Name: "ping", OwnerOnly: true},
		)

		bot.commands.HandleMessage(ctx, testMessage(".ping"))
		assert.Equal(t, 0, *calls)
		require.Len(t, session.messages, 1)
		assert.Equal(t, ErrPermissionDenied.Message, session.messages[0].content)

		// the configured owner passes the gate
		m := testMessage(".ping")
		m.Author.ID = "owner-id"
		bot.commands.HandleMessage(ctx, m)
		assert.Equal(t, 1, *calls)
	})

	t.Run("cooldown", func(t *testing.T) {
		bot, session := newTestBot(t)
		calls := registerEchoCommand(
			t, bot, &Command{Name: "ping", Cooldown: time.Minute},
		)

		bot.commands.HandleMessage(ctx, testMessage(".ping"))
		bot.commands.HandleMessage(ctx, testMessage(".ping"))
		assert.Equal(t, 1, *calls)
		require.Len(t, session.messages, 1)
		assert.Equal(t, ErrCooldown.Message, session.messages[0].content)
	})

	t.Run("missing embed links permission", func(t *testing.T) {
		bot, session := newTestBot(t)
		calls := registerEchoCommand(
			t, bot, &Command{Name: "ping", RequireEmbedLinks: true},
		)
		session.permissions = 0

		bot.commands.HandleMessage(ctx, testMessage(".ping"))
		assert.Equal(t, 0, *calls)
		require.Len(t, session.messages, 1)
		assert.Equal(
			t, ErrBotPermissionDenied.Message, session.messages[0].content,
		)
	})
}

func TestCommandErrorReplies(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed argument includes usage", func(t *testing.T) {
		bot, session := newTestBot(t)
		registerEchoCommand(
			t, bot, &Command{
				Name:  "lookup",
				Usage: "<query>",
				Run: func(context.Context, *CommandContext) error {
					return malformedArgumentError(errors.New("empty query"))
				},
			},
		)

		bot.commands.HandleMessage(ctx, testMessage(".lookup"))
		require.Len(t, session.messages, 1)
		assert.Contains(t, session.messages[0].content, "Invalid argument(s)")
		assert.Contains(t, session.messages[0].content, "```.lookup <query>```")
	})

	t.Run("known kinds get their message", func(t *testing.T) {
		bot, session := newTestBot(t)
		registerEchoCommand(
			t, bot, &Command{
				Name: "lookup",
				Run: func(context.Context, *CommandContext) error {
					return ErrNoMatch
				},
			},
		)

		bot.commands.HandleMessage(ctx, testMessage(".lookup something"))
		require.Len(t, session.messages, 1)
		assert.Equal(t, ErrNoMatch.Message, session.messages[0].content)
	})

	t.Run("unexpected errors get a generic reply", func(t *testing.T) {
		bot, session := newTestBot(t)
		registerEchoCommand(
			t, bot, &Command{
				Name: "lookup",
				Run: func(context.Context, *CommandContext) error {
					return errors.New("boom")
				},
			},
		)

		bot.commands.HandleMessage(ctx, testMessage(".lookup something"))
		require.Len(t, session.messages, 1)
		assert.Equal(
			t, "Sorry, something went wrong!", session.messages[0].content,
		)
	})
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	bot, _ := newTestBot(t)

	err := bot.commands.Register(&Command{Name: "docs"})
	require.Error(t, err)

	err = bot.commands.Register(&Command{Name: "mycmd", Aliases: []string{"d"}})
	require.Error(t, err, "aliases collide too")
}
