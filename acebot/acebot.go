package acebot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/onerandomusername/AceBot/acebot.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	defaultLogWriter io.Writer = os.Stdout
)

// AceBot is the main application struct: it wires together the Discord
// gateway session, the documentation corpus and resolver, the pager
// registry, the forum feed poller, and the status API.
//
// Fields:
//   - config: Pointer to the main configuration struct.
//   - db: The GORM database connection.
//   - writeDB: DBI wrapper used for write/update operations.
//   - discord: The Discord gateway integration.
//   - store: The documentation corpus store.
//   - corpusSource: Source the corpus is rebuilt from.
//   - resolver: Query resolver over the corpus.
//   - pagers: Registry of live pager sessions.
//   - feed: The forum feed poller.
//   - users: Cache of known Discord users.
//   - commands: The prefix command registry.
//   - api: The status API server.
type AceBot struct {
	config       *Config
	db           *gorm.DB
	writeDB      DBI
	discord      *Discord
	store        *DocsStore
	corpusSource CorpusSource
	resolver     *DocsResolver
	pagers       *PagerRegistry
	feed         *ForumFeed
	users        *UserCache
	commands     *CommandRegistry
	api          *API
	httpClient   *http.Client

	logger     *slog.Logger
	logHandler slog.Handler

	runMu     sync.Mutex
	startedAt time.Time

	metricCommandsHandled atomic.Int64
}

// New validates the config and assembles an AceBot. The database and
// Discord session aren't touched until [AceBot.Run].
func New(config *Config) (*AceBot, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}
	if config.Discord.Token == "" {
		errs = append(errs, errors.New("discord token is required"))
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	b := &AceBot{
		config:     config,
		httpClient: config.HTTPClient,
	}

	b.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     config.LogLevel,
			AddSource: true,
		},
	)
	b.logger = slog.New(b.logHandler)
	slog.SetDefault(b.logger)

	config.Discord.httpClient = config.HTTPClient

	disc := newDiscord(config.Discord)
	disc.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")
	b.discord = disc

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	b.corpusSource = NewHTMLDocsSource(
		config.Docs.IndexURL, config.HTTPClient, b.logger,
	)
	b.pagers = NewPagerRegistry(b.logger)
	b.commands = NewCommandRegistry(b, b.logger)
	if err := b.registerCommands(); err != nil {
		errs = append(errs, err)
	}

	if config.API.Enabled {
		b.api = newAPI(b, config.API)
	}

	return b, errors.Join(errs...)
}

// registerCommands registers the bot's built-in commands.
func (b *AceBot) registerCommands() error {
	commands := []*Command{
		b.commandDocs(),
		b.commandDocsList(),
		b.commandDocsPage(),
		b.commandBuild(),
		b.commandVersion(),
		b.commandHelp(),
	}
	for _, cmd := range commands {
		if err := b.commands.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

// commandHelp lists the registered commands.
func (b *AceBot) commandHelp() *Command {
	return &Command{
		Name:        "help",
		Usage:       "",
		Description: "List available commands",
		Cooldown:    5 * time.Second,
		Run: func(ctx context.Context, cc *CommandContext) error {
			prefix := b.config.Discord.CommandPrefix
			var sb strings.Builder
			for _, cmd := range b.commands.Commands() {
				if cmd.OwnerOnly || cmd.Disabled {
					continue
				}
				sb.WriteString(
					fmt.Sprintf(
						"`%s%s %s` - %s\n",
						prefix, cmd.Name, cmd.Usage, cmd.Description,
					),
				)
			}
			embed := newEmbed()
			embed.Title = "Commands"
			embed.Description = strings.TrimSpace(sb.String())
			return cc.SendEmbed(ctx, embed)
		},
	}
}

// initDB opens the database, runs migrations, and loads the name index.
func (b *AceBot) initDB(ctx context.Context) error {
	db, err := CreateDB(ctx, b.config.DatabaseType, b.config.Database)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	b.db = db
	b.writeDB = NewDatabase(
		db, b.logger, b.config.DatabaseType == dbTypePostgres,
	)
	b.users = NewUserCache(b.writeDB, b.logger)
	b.store = NewDocsStore(db, b.logger)
	b.resolver = NewDocsResolver(b.store, b.logger)
	b.feed = NewForumFeed(
		b.config.Feed, nil, b.httpClient, b.logger,
	)
	return b.store.LoadNameIndex()
}

// initDiscord creates and opens the gateway session and registers the
// message/interaction handlers.
func (b *AceBot) initDiscord(ctx context.Context) error {
	session, err := b.discord.newSession()
	if err != nil {
		return err
	}
	b.discord.session = session
	b.feed.session = session

	b.discord.discordgoRemoveHandlerFuncs = []func(){
		session.AddHandler(b.discord.handlerReady()),
		session.AddHandler(b.discord.handlerConnect()),
		session.AddHandler(b.discord.handlerDisconnect()),
		session.AddHandler(
			func(_ *discordgo.Session, m *discordgo.MessageCreate) {
				b.commands.HandleMessage(ctx, m)
			},
		),
		session.AddHandler(
			func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
				b.pagers.HandleComponent(ctx, i)
			},
		),
	}
	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}
	return nil
}

// Run starts the bot and blocks until the context is cancelled or a
// fatal error occurs. Startup (database, corpus index, gateway connect)
// is bounded by the configured startup timeout.
func (b *AceBot) Run(ctx context.Context) error {
	// prevents concurrent runs
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.startedAt = time.Now()
	logger := b.logger
	ctx = WithLogger(ctx, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.LogAttrs(
		ctx, slog.LevelInfo, "starting",
		slog.String("version", Version),
		slog.Any("config", b.config),
	)

	startCtx, startCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startCancel()

	if err := b.initDB(startCtx); err != nil {
		return err
	}
	if err := b.initDiscord(ctx); err != nil {
		return err
	}
	defer func() {
		for _, removeHandler := range b.discord.discordgoRemoveHandlerFuncs {
			removeHandler()
		}
		if err := b.discord.session.Close(); err != nil {
			logger.Warn("error closing discord session", tint.Err(err))
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(
		func() error {
			b.feed.Run(groupCtx)
			return nil
		},
	)
	group.Go(
		func() error {
			b.pagers.RunReaper(groupCtx)
			return nil
		},
	)
	if b.api != nil {
		group.Go(
			func() error {
				return b.api.Serve(groupCtx)
			},
		)
	}

	logger.InfoContext(ctx, "startup complete")

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// bound the graceful exit; anything still running past the
		// deadline gets abandoned
		select {
		case err = <-done:
		case <-time.After(b.config.ShutdownTimeout):
			err = errors.New("graceful shutdown timed out")
		}
	}
	if err != nil {
		logger.Error("runtime error", tint.Err(err))
	}
	logger.Info("shutdown complete")
	return err
}
