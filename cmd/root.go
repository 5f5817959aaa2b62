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

	"github.com/AllegroVivo/StaffPartyBotv2-sub000/partybus"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = partybus.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "partybus [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
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

	viper.SetDefault("database", partybus.DefaultDatabase)
	viper.SetDefault("database_type", partybus.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		partybus.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		partybus.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", partybus.DefaultLogLevel.String())
	viper.SetDefault("api.log_level", partybus.DefaultAPILogLevel.String())

	viper.SetDefault("startup_timeout", partybus.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", partybus.DefaultShutdownTimeout)

	viper.SetDefault("revisit_interval", partybus.DefaultRevisitInterval)
	viper.SetDefault("settings_ttl", partybus.DefaultSettingsTTL)
	viper.SetDefault("profile_cache_ttl", partybus.DefaultProfileCacheTTL)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault(
		"discord.log_level",
		partybus.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		partybus.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		partybus.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault(
		"discord.startup_message",
		partybus.DefaultDiscordStartupMessage,
	)

	// API config
	viper.SetDefault("api.listen", partybus.DefaultAPIListen)
	viper.SetDefault("api.secret", "")
	viper.SetDefault(
		"api.session_max_age",
		partybus.DefaultAPISessionMaxAge,
	)
	viper.SetDefault("api.read_timeout", partybus.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		partybus.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", partybus.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", partybus.DefaultIdleTimeout)

	// API: CORS config
	viper.SetDefault(
		"api.cors.allow_headers",
		partybus.DefaultCORSAllowHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_methods",
		partybus.DefaultCORSAllowMethods,
	)
	viper.SetDefault(
		"api.cors.expose_headers",
		partybus.DefaultCORSExposeHeaders,
	)
	viper.SetDefault(
		"api.cors.allow_origins",
		[]string{},
	)
	viper.SetDefault("api.cors.max_age", partybus.DefaultCORSMaxAge)
	viper.SetDefault(
		"api.cors.allow_credentials",
		partybus.DefaultAPICORSAllowCredentials,
	)

	envPrefix := os.Getenv(partybus.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = partybus.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	convertSliceKey(envPrefix, "api.cors.allow_headers")
	convertSliceKey(envPrefix, "api.cors.allow_origins")
	convertSliceKey(envPrefix, "api.cors.allow_methods")
	convertSliceKey(envPrefix, "api.cors.expose_headers")

	convertLevelKey(envPrefix, "log_level")
	convertLevelKey(envPrefix, "discord.log_level")
	convertLevelKey(envPrefix, "discord.discordgo_log_level")
	convertLevelKey(envPrefix, "database_log_level")
	convertLevelKey(envPrefix, "api.log_level")
}

// convertSliceKey replaces a space-separated string in viper with a
// []string. Like convertLevelKey, re-runs read the environment directly
// because the viper.Set from a previous pass shadows env changes.
func convertSliceKey(envPrefix, key string) {
	raw, fromEnv := os.LookupEnv(
		envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
	)
	if fromEnv {
		viper.Set(key, strings.Fields(raw))
		return
	}
	viper.Set(key, viper.GetStringSlice(key))
}

// convertLevelKey replaces a level name in viper with a *slog.LevelVar.
// initConfig runs once per command execution (cobra re-runs OnInitialize
// each time), and viper.Set is permanent: once the LevelVar is in, the
// raw string is unreachable through viper. Re-runs therefore update the
// existing LevelVar in place from the environment.
func convertLevelKey(envPrefix, key string) {
	raw, fromEnv := os.LookupEnv(
		envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
	)
	if lvl, ok := viper.Get(key).(*slog.LevelVar); ok {
		if !fromEnv {
			return
		}
		if err := lvl.UnmarshalText([]byte(raw)); err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		return
	}
	logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
	if err != nil {
		log.Fatalf("error parsing %s: %v", key, err)
	}
	viper.Set(key, logLevelVar)
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
