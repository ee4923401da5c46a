package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/onerandomusername/AceBot/acebot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = acebot.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "acebot [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					mapstructure.StringToSliceHookFunc(","),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", acebot.DefaultDatabase)
	viper.SetDefault("database_type", acebot.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		acebot.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		acebot.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", acebot.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", acebot.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", acebot.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.owner_id", "")
	viper.SetDefault("discord.command_prefix", acebot.DefaultCommandPrefix)
	viper.SetDefault("discord.docs_guild_ids", []string{})
	viper.SetDefault("discord.custom_status", acebot.DefaultDiscordCustomStatus)
	viper.SetDefault(
		"discord.log_level",
		acebot.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		acebot.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		acebot.DefaultDiscordGatewayIntent,
	)

	// Docs config
	viper.SetDefault("docs.index_url", acebot.DefaultDocsIndexURL)
	viper.SetDefault("docs.base_url", acebot.DefaultDocsBaseURL)
	viper.SetDefault("docs.releases_url", acebot.DefaultReleasesURL)
	viper.SetDefault("docs.page_size", acebot.DefaultPagerPageSize)
	viper.SetDefault("docs.pager_idle_timeout", acebot.DefaultPagerIdleTimeout)
	viper.SetDefault("docs.footer_text", acebot.DefaultDocsFooterText)
	viper.SetDefault("docs.footer_icon_url", acebot.DefaultDocsFooterIconURL)

	// Feed config
	viper.SetDefault("feed.url", acebot.DefaultFeedURL)
	viper.SetDefault("feed.interval", acebot.DefaultFeedInterval)
	viper.SetDefault("feed.timeout", acebot.DefaultFeedTimeout)
	viper.SetDefault("feed.thread_channel_id", "")
	viper.SetDefault("feed.reply_channel_id", "")
	viper.SetDefault("feed.footer_text", "")
	viper.SetDefault("feed.footer_icon_url", "")

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", acebot.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.log_level", acebot.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", acebot.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		acebot.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", acebot.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", acebot.DefaultIdleTimeout)

	envPrefix := os.Getenv(acebot.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = acebot.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	viper.Set(
		"discord.docs_guild_ids",
		viper.GetStringSlice("discord.docs_guild_ids"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
