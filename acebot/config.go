//nolint:lll // struct tags can't be split
package acebot

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	EnvvarSetEnvPrefix = "ACEBOT_ENV_PREFIX"
	DefaultEnvPrefix   = "ACE"

	DefaultDatabaseType    = "sqlite"
	DefaultDatabase        = "acebot.sqlite3"
	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultAPILogLevel           = slog.LevelInfo

	DefaultCommandPrefix        = "."
	DefaultDiscordCustomStatus  = ".help"
	DefaultDiscordGatewayIntent = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentMessageContent

	DefaultDocsIndexURL      = "https://www.autohotkey.com/docs/v1/lib/index.htm"
	DefaultDocsBaseURL       = "https://www.autohotkey.com/docs/"
	DefaultReleasesURL       = "https://api.github.com/repos/AutoHotkey/AutoHotkey/releases/latest"
	DefaultDocsFooterText    = "www.autohotkey.com"
	DefaultDocsFooterIconURL = "https://www.autohotkey.com/favicon.ico"

	DefaultFeedURL = "https://www.autohotkey.com/boards/feed"

	DefaultAPIListen         = "127.0.0.1:5000"
	defaultListenNetwork     = "tcp"
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
)

type Config struct {
	// Database connection string
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// Discord configures aspects of the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// Docs configures the documentation corpus and lookup commands
	Docs *DocsConfig `yaml:"docs" mapstructure:"docs" json:"docs"`

	// Feed configures the forum feed poller
	Feed *FeedConfig `yaml:"feed" mapstructure:"feed" json:"feed"`

	// API configures the status API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// OwnerID is the Discord user ID allowed to run owner-only commands
	OwnerID string `yaml:"owner_id" mapstructure:"owner_id" json:"owner_id"`

	// CommandPrefix is the message prefix that marks a command invocation
	CommandPrefix string `yaml:"command_prefix" mapstructure:"command_prefix" json:"command_prefix"`

	// DocsGuildIDs lists the guilds where unrecognized commands get a
	// docs-command hint
	DocsGuildIDs []string `yaml:"docs_guild_ids" mapstructure:"docs_guild_ids" json:"docs_guild_ids"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// CustomStatus is set as the bot's status on connect, when non-empty
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	httpClient *http.Client
}

// DocsConfig configures the documentation corpus source and lookup
// commands.
type DocsConfig struct {
	// IndexURL is the documentation index page the corpus is built from
	IndexURL string `yaml:"index_url" mapstructure:"index_url" json:"index_url"`

	// BaseURL prefixes docs-relative links when rendering entries
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// ReleasesURL is the endpoint queried by the version command
	ReleasesURL string `yaml:"releases_url" mapstructure:"releases_url" json:"releases_url"`

	// PageSize is the number of entries per docs page listing
	PageSize int `yaml:"page_size" mapstructure:"page_size" json:"page_size"`

	// PagerIdleTimeout is how long pager sessions accept input
	PagerIdleTimeout time.Duration `yaml:"pager_idle_timeout" mapstructure:"pager_idle_timeout" json:"pager_idle_timeout"`

	// FooterText is shown in the footer of docs embeds
	FooterText string `yaml:"footer_text" mapstructure:"footer_text" json:"footer_text"`

	// FooterIconURL is the icon shown next to the footer text
	FooterIconURL string `yaml:"footer_icon_url" mapstructure:"footer_icon_url" json:"footer_icon_url"`
}

// FeedConfig configures the forum feed poller.
type FeedConfig struct {
	// URL of the forum Atom feed
	URL string `yaml:"url" mapstructure:"url" json:"url"`

	// Interval between feed polls
	Interval time.Duration `yaml:"interval" mapstructure:"interval" json:"interval"`

	// Timeout bounds a single feed fetch
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`

	// ThreadChannelID receives new-thread entries
	ThreadChannelID string `yaml:"thread_channel_id" mapstructure:"thread_channel_id" json:"thread_channel_id"`

	// ReplyChannelID receives reply entries
	ReplyChannelID string `yaml:"reply_channel_id" mapstructure:"reply_channel_id" json:"reply_channel_id"`

	// FooterText is shown in the footer of feed embeds
	FooterText string `yaml:"footer_text" mapstructure:"footer_text" json:"footer_text"`

	// FooterIconURL is the icon shown next to the footer text
	FooterIconURL string `yaml:"footer_icon_url" mapstructure:"footer_icon_url" json:"footer_icon_url"`
}

// APIConfig configures the status API server
type APIConfig struct {
	// Determines if the API server should be active
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network"`

	// Token authorizes mutating API requests, via bearer auth
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			CommandPrefix:     DefaultCommandPrefix,
			CustomStatus:      DefaultDiscordCustomStatus,
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
		},
		Docs: &DocsConfig{
			IndexURL:         DefaultDocsIndexURL,
			BaseURL:          DefaultDocsBaseURL,
			ReleasesURL:      DefaultReleasesURL,
			PageSize:         DefaultPagerPageSize,
			PagerIdleTimeout: DefaultPagerIdleTimeout,
			FooterText:       DefaultDocsFooterText,
			FooterIconURL:    DefaultDocsFooterIconURL,
		},
		Feed: &FeedConfig{
			URL:      DefaultFeedURL,
			Interval: DefaultFeedInterval,
			Timeout:  DefaultFeedTimeout,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}
