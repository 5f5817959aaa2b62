//nolint:lll // struct tags can't be split
package partybus

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	EnvvarSetEnvPrefix  = "PARTYBUS_ENV_PREFIX"
	DefaultEnvPrefix    = "SPB"
	DefaultDatabaseType = "sqlite"
	DefaultDatabase     = "partybus.sqlite3"
	DefaultLogLevel     = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DiscordSlashCommandAvailability = "availability"
	DiscordSlashCommandTimezone     = "timezone"
	DiscordSlashCommandProfile      = "profile"

	DefaultDiscordGatewayIntent  = discordgo.IntentsAllWithoutPrivileged
	DefaultDiscordCustomStatus   = "Staffing venues!"
	DefaultDiscordStartupMessage = "Staff Party Bus is here!"
	DefaultDiscordErrorMessage   = "sorry, something went wrong!"

	DefaultAPIListen        = "127.0.0.1:5000"
	DefaultAPISessionMaxAge = 6 * time.Hour

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultAPILogLevel           = slog.LevelInfo
	defaultListenNetwork         = "tcp"

	DefaultAPICORSAllowCredentials = true

	DefaultFanoutPerSecond = 2
	DefaultRevisitAfter    = 30 * 24 * time.Hour

	// DefaultRevisitInterval is how often the revisit loop re-evaluates
	// posting expirations and profile revisit timers
	DefaultRevisitInterval = time.Minute

	DefaultSettingsTTL     = 5 * time.Minute
	DefaultProfileCacheTTL = time.Hour
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-Requested-With",
		"Cache-Control",
		"X-CSRF-Token",
		xRequestIDHeader,
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		xRequestIDHeader,
		"Location",
		"ETag",
		"Authorization",
		"Last-Modified",
	}
	DefaultCORSMaxAge = 12 * time.Hour
)

type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// API configures the backend admin API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// Discord configures aspects of the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// RevisitInterval is the cadence of the loop re-evaluating posting
	// expirations and profile revisit timers
	RevisitInterval time.Duration `yaml:"revisit_interval" mapstructure:"revisit_interval" json:"revisit_interval"`

	// SettingsTTL sets the time-to-live for cached BotSettings. By default,
	// settings are loaded on start and refreshed on each update. When
	// running multiple instances, settings may become 'stale' if updated
	// from another instance; with a TTL above 0, they're refreshed from the
	// database at least every TTL duration. If using PostgreSQL,
	// LISTEN/NOTIFY announces updates in addition to this.
	SettingsTTL time.Duration `yaml:"settings_ttl" mapstructure:"settings_ttl" json:"settings_ttl"`

	// ProfileCacheTTL sets the time-to-live for the Profile cache. All
	// [Profile] entries are loaded on startup, with new/updated entries
	// added as needed; a TTL above 0 additionally refreshes the cache from
	// the database at least every TTL duration. Primarily useful when
	// running multiple instances.
	ProfileCacheTTL time.Duration `yaml:"profile_cache_ttl" mapstructure:"profile_cache_ttl" json:"profile_cache_ttl"`

	// Timezones overrides the built-in timezone catalog (label -> IANA name)
	Timezones map[string]string `yaml:"timezones" mapstructure:"timezones" json:"timezones"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID specifies the guild ID used when registering slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// If specified, and [BotSettings.NotificationChannelID] is set, the bot
	// will send the specified message to that channel whenever it connects
	// to the discord gateway.
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`
}

// APIConfig configures the admin API server.
//
//nolint:lll // struct tags can't be split
type APIConfig struct {
	// Listen address ("127.0.0.1:5000")
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required,hostname_port"`

	// Secret is used to generate session cookie keys. If empty, a random
	// secret is generated at startup (sessions won't survive restarts).
	Secret string `yaml:"secret" mapstructure:"secret" json:"secret" log:"[redacted]"`

	// SessionMaxAge is the maximum age of an admin session cookie
	SessionMaxAge time.Duration `yaml:"session_max_age" mapstructure:"session_max_age" json:"session_max_age"`

	// LogLevel for API request logging
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`

	// CORS configures cross-origin headers for the admin UI
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`
}

//nolint:lll // struct tags can't be split
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func newLevelVar(level slog.Level) *slog.LevelVar {
	v := &slog.LevelVar{}
	v.Set(level)
	return v
}

// DefaultConfig returns a Config with default values set.
func DefaultConfig() *Config {
	return &Config{
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      newLevelVar(DefaultDatabaseLogLevel),
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              newLevelVar(DefaultLogLevel),
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		RevisitInterval:       DefaultRevisitInterval,
		SettingsTTL:           DefaultSettingsTTL,
		ProfileCacheTTL:       DefaultProfileCacheTTL,
		Discord: &DiscordConfig{
			LogLevel:          newLevelVar(DefaultDiscordLogLevel),
			DiscordGoLogLevel: newLevelVar(DefaultDiscordgoLogLevel),
			GatewayIntents:    DefaultDiscordGatewayIntent,
			StartupMessage:    DefaultDiscordStartupMessage,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			SessionMaxAge:     DefaultAPISessionMaxAge,
			LogLevel:          newLevelVar(DefaultAPILogLevel),
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS: CORSConfig{
				AllowMethods:     DefaultCORSAllowMethods,
				AllowHeaders:     DefaultCORSAllowHeaders,
				ExposeHeaders:    DefaultCORSExposeHeaders,
				AllowCredentials: DefaultAPICORSAllowCredentials,
				MaxAge:           DefaultCORSMaxAge,
			},
		},
	}
}
