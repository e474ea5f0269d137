package config

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "EVENTSTORE"

type Settings struct {
	Name    string
	Version string
	Env     string

	Server    ServerSettings
	Debug     DebugSettings
	Store     StoreSettings
	Snapshot  SnapshotSettings
	CORS      CORSSettings
	Log       LogSettings
	Telemetry TelemetrySettings

	ShutdownTimeout time.Duration
}

type ServerSettings struct {
	Host string
	Port string
}

type DebugSettings struct {
	Enabled bool
	Host    string
	Port    string
}

type StoreSettings struct {
	Path        string
	StrictLoad  bool
	StrictTimes bool
}

type SnapshotSettings struct {
	Cron string
	Dir  string
}

type CORSSettings struct {
	AllowedOrigins []string
}

type LogSettings struct {
	Level  string
	Format string
}

type TelemetrySettings struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

func SetDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("debug.enabled", true)
	viper.SetDefault("debug.host", "localhost")
	viper.SetDefault("debug.port", "6060")
	viper.SetDefault("store.path", "events.json")
	viper.SetDefault("store.strict_load", false)
	viper.SetDefault("store.strict_times", false)
	viper.SetDefault("snapshot.cron", "")
	viper.SetDefault("snapshot.dir", "snapshots")
	viper.SetDefault("cors.allowed_origins", []string{})
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "localhost:4317")
	viper.SetDefault("telemetry.insecure", true)
	viper.SetDefault("shutdown.timeout", 15*time.Second)
}

// Default loads .env, defaults, the optional config file and the environment,
// sets up the global logger and returns ctx carrying it.
func Default(ctx context.Context, name string, version string, env string) context.Context {
	dotenvErr := godotenv.Load()

	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var configErr error

	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		configErr = viper.ReadInConfig()
	}

	logger := NewLogger(viper.GetString("log.level"), viper.GetString("log.format"), os.Stdout).
		With().Str("service", name).Str("version", version).Str("env", env).Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger

	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		logger.Warn().Err(dotenvErr).Msg("unable to load .env file")
	}

	if configErr != nil {
		logger.Warn().Err(configErr).Str("file", viper.ConfigFileUsed()).Msg("unable to read config file")
	}

	return logger.WithContext(ctx)
}

func NewLogger(level string, format string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func Load(name string, version string, env string) Settings {
	return Settings{
		Name:    name,
		Version: version,
		Env:     env,
		Server: ServerSettings{
			Host: viper.GetString("server.host"),
			Port: viper.GetString("server.port"),
		},
		Debug: DebugSettings{
			Enabled: viper.GetBool("debug.enabled"),
			Host:    viper.GetString("debug.host"),
			Port:    viper.GetString("debug.port"),
		},
		Store: StoreSettings{
			Path:        viper.GetString("store.path"),
			StrictLoad:  viper.GetBool("store.strict_load"),
			StrictTimes: viper.GetBool("store.strict_times"),
		},
		Snapshot: SnapshotSettings{
			Cron: viper.GetString("snapshot.cron"),
			Dir:  viper.GetString("snapshot.dir"),
		},
		CORS: CORSSettings{
			AllowedOrigins: splitList(viper.GetStringSlice("cors.allowed_origins")),
		},
		Log: LogSettings{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Telemetry: TelemetrySettings{
			Enabled:  viper.GetBool("telemetry.enabled"),
			Endpoint: viper.GetString("telemetry.endpoint"),
			Insecure: viper.GetBool("telemetry.insecure"),
		},
		ShutdownTimeout: viper.GetDuration("shutdown.timeout"),
	}
}

// splitList also accepts comma separated entries, as env vars provide them.
func splitList(values []string) []string {
	var out []string

	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			item = strings.TrimSpace(item)
			if item != "" {
				out = append(out, item)
			}
		}
	}

	return out
}
