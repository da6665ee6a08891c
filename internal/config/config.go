package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Bot      Bot
	Ollama   Ollama
	Postgres Postgres
	Chat     Chat
	Log      Log
}

func (conf Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Group("bot",
			slog.String("token", "<hidden>"),
			slog.Duration("poll_timeout", conf.Bot.PollTimeout),
			slog.Duration("send_interval", conf.Bot.SendInterval),
		),
		slog.Group("postgres",
			slog.String("host", conf.Postgres.Host),
			slog.String("user", conf.Postgres.User),
			slog.String("password", "<hidden>"),
			slog.String("db", conf.Postgres.DB),
		),
		slog.Group("ollama",
			slog.String("host", conf.Ollama.Host),
			slog.String("model", conf.Ollama.Model),
			slog.String("vision_model", conf.Ollama.VisionModel),
			slog.Int("workers", conf.Ollama.Workers),
			slog.Duration("timeout", conf.Ollama.Timeout),
		),
		slog.Group("chat",
			slog.Int("token_limit", conf.Chat.TokenLimit),
			slog.Float64("message_probability", conf.Chat.MessageProbability),
			slog.Int("context_size", conf.Chat.ContextSize),
			slog.String("keywords", strings.Join(conf.Chat.Keywords, ",")),
			slog.Int64("main_chat_id", conf.Chat.MainChatID),
			slog.Int64("service_chat_id", conf.Chat.ServiceChatID),
			slog.String("admin", conf.Chat.AdminUsername),
		),
	)
}

type Bot struct {
	Token         string        `env:"BOT_TOKEN" env-required:"true" yaml:"token"`
	PollTimeout   time.Duration `env:"BOT_POLL_TIMEOUT" env-default:"10s" yaml:"poll_timeout"`
	SendInterval  time.Duration `env:"BOT_SEND_INTERVAL" env-default:"50ms" yaml:"send_interval"`
	MaxImageBytes int64         `env:"MAX_IMAGE_BYTES" env-default:"20971520" yaml:"max_image_bytes"`
}

type Ollama struct {
	Host             string        `env:"OLLAMA_HOST" env-default:"http://localhost:11434" yaml:"host"`
	Model            string        `env:"OLLAMA_MODEL" env-default:"OxW/Vikhr-Nemo-12B-Instruct-R-21-09-24:q8_0" yaml:"model"`
	VisionModel      string        `env:"OLLAMA_VISION_MODEL" env-default:"qwen2.5vl:7b" yaml:"vision_model"`
	Pull             bool          `env:"OLLAMA_PULL" env-default:"false" yaml:"pull"`
	Timeout          time.Duration `env:"OLLAMA_TIMEOUT" env-default:"5m" yaml:"timeout"`
	Workers          int           `env:"OLLAMA_WORKERS" env-default:"1" yaml:"workers"`
	MaxRetryAttempts int           `env:"MAX_RETRY_ATTEMPTS" env-default:"30" yaml:"max_retry_attempts"`
	RetryDelay       time.Duration `env:"RETRY_DELAY" env-default:"1s" yaml:"retry_delay"`
}

type Postgres struct {
	Host     string `env:"POSTGRES_HOST" env-default:"postgres:5432" yaml:"host"`
	User     string `env:"POSTGRES_USER" env-required:"true" yaml:"user"`
	Password string `env:"POSTGRES_PASSWORD" env-required:"true" yaml:"password"`
	DB       string `env:"POSTGRES_DB" env-required:"true" yaml:"db"`
}

// DSN returns the connection string for the river job queue database.
func (pg Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pg.User, pg.Password),
		Host:     pg.Host,
		Path:     "/" + pg.DB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type Chat struct {
	TokenLimit         int      `env:"TOKEN_LIMIT" env-default:"4096" yaml:"token_limit"`
	TokenizerModel     string   `env:"TOKENIZER_MODEL" env-default:"gpt-3.5-turbo" yaml:"tokenizer_model"`
	MessageProbability float64  `env:"MESSAGE_PROBABILITY" env-default:"0.1" yaml:"message_probability"`
	ContextSize        int      `env:"CONTEXT_SIZE" env-default:"100" yaml:"context_size"`
	Keywords           []string `env:"KEYWORDS" env-default:"валер,@ai_valera" env-separator:"," yaml:"keywords"`
	MainChatID         int64    `env:"MAIN_CHAT_ID" env-default:"0" yaml:"main_chat_id"`
	AdminUsername      string   `env:"ADMIN_USERNAME" yaml:"admin_username"`
	ServiceChatID      int64    `env:"SERVICE_CHAT_ID" env-default:"0" yaml:"service_chat_id"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" env-default:"info" yaml:"level"`
	Format string `env:"LOG_FORMAT" env-default:"text" yaml:"format"`
}

// SlogLevel maps Level onto slog, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Read loads the configuration from the environment. When CONFIG_PATH
// points to a YAML file, it is read first and the environment overrides it.
func Read() (Config, error) {
	var conf Config

	var err error
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		err = cleanenv.ReadConfig(path, &conf)
	} else {
		err = cleanenv.ReadEnv(&conf)
	}
	if err != nil {
		return Config{}, err
	}

	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

func (conf Config) Validate() error {
	var errs []error
	if p := conf.Chat.MessageProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("MESSAGE_PROBABILITY must be within [0, 1], got %v", p))
	}
	if conf.Chat.TokenLimit <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_LIMIT must be positive, got %d", conf.Chat.TokenLimit))
	}
	if conf.Chat.ContextSize <= 0 {
		errs = append(errs, fmt.Errorf("CONTEXT_SIZE must be positive, got %d", conf.Chat.ContextSize))
	}
	if conf.Ollama.Workers < 1 {
		errs = append(errs, fmt.Errorf("OLLAMA_WORKERS must be at least 1, got %d", conf.Ollama.Workers))
	}
	if conf.Ollama.MaxRetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1, got %d", conf.Ollama.MaxRetryAttempts))
	}
	if conf.Bot.MaxImageBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_BYTES must be positive, got %d", conf.Bot.MaxImageBytes))
	}
	return errors.Join(errs...)
}
