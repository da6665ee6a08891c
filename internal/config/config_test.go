package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("POSTGRES_USER", "valera")
	t.Setenv("POSTGRES_PASSWORD", "p@ss word")
	t.Setenv("POSTGRES_DB", "valera")
}

func TestRead_Defaults(t *testing.T) {
	setRequired(t)

	conf, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if conf.Chat.TokenLimit != 4096 {
		t.Errorf("TokenLimit = %d, want 4096", conf.Chat.TokenLimit)
	}
	if conf.Chat.MessageProbability != 0.1 {
		t.Errorf("MessageProbability = %v, want 0.1", conf.Chat.MessageProbability)
	}
	if conf.Chat.ContextSize != 100 {
		t.Errorf("ContextSize = %d, want 100", conf.Chat.ContextSize)
	}
	if !slices.Equal(conf.Chat.Keywords, []string{"валер", "@ai_valera"}) {
		t.Errorf("Keywords = %v", conf.Chat.Keywords)
	}
	if conf.Ollama.MaxRetryAttempts != 30 || conf.Ollama.RetryDelay != time.Second {
		t.Errorf("retry = %d/%v, want 30/1s", conf.Ollama.MaxRetryAttempts, conf.Ollama.RetryDelay)
	}
	if conf.Ollama.Workers != 1 {
		t.Errorf("Workers = %d, want 1", conf.Ollama.Workers)
	}
	if conf.Ollama.Host != "http://localhost:11434" {
		t.Errorf("Host = %q", conf.Ollama.Host)
	}
}

func TestRead_MissingCredentials(t *testing.T) {
	setRequired(t)
	os.Unsetenv("BOT_TOKEN")

	if _, err := Read(); err == nil {
		t.Fatal("Read succeeded without BOT_TOKEN")
	}
}

func TestRead_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("KEYWORDS", "бот,hey bot")
	t.Setenv("MESSAGE_PROBABILITY", "0.5")
	t.Setenv("MAIN_CHAT_ID", "-100123")
	t.Setenv("ADMIN_USERNAME", "@admin")
	t.Setenv("OLLAMA_WORKERS", "3")

	conf, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !slices.Equal(conf.Chat.Keywords, []string{"бот", "hey bot"}) {
		t.Errorf("Keywords = %v", conf.Chat.Keywords)
	}
	if conf.Chat.MessageProbability != 0.5 || conf.Chat.MainChatID != -100123 ||
		conf.Chat.AdminUsername != "@admin" || conf.Ollama.Workers != 3 {
		t.Errorf("overrides not applied: %+v", conf)
	}
}

func TestRead_RejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"MESSAGE_PROBABILITY": "1.5",
		"TOKEN_LIMIT":         "0",
		"OLLAMA_WORKERS":      "0",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)
			if _, err := Read(); err == nil || !strings.Contains(err.Error(), key) {
				t.Errorf("Read error = %v, want one naming %s", err, key)
			}
		})
	}
}

func TestRead_YAMLFile(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	body := "chat:\n  token_limit: 2048\n  admin_username: \"@boss\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ADMIN_USERNAME", "@env_boss")

	conf, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if conf.Chat.TokenLimit != 2048 {
		t.Errorf("TokenLimit = %d, want 2048 from file", conf.Chat.TokenLimit)
	}
	if conf.Chat.AdminUsername != "@env_boss" {
		t.Errorf("AdminUsername = %q, want environment override", conf.Chat.AdminUsername)
	}
}

func TestPostgresDSN_EscapesCredentials(t *testing.T) {
	pg := Postgres{Host: "db:5432", User: "valera", Password: "p@ss word", DB: "bot"}

	want := "postgres://valera:p%40ss%20word@db:5432/bot?sslmode=disable"
	if got := pg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLogValue_HidesSecrets(t *testing.T) {
	conf := Config{Bot: Bot{Token: "secret-token"}, Postgres: Postgres{Password: "secret-pass"}}

	rendered := conf.LogValue().String()
	if strings.Contains(rendered, "secret") {
		t.Errorf("LogValue leaks secrets: %s", rendered)
	}
}

func TestLog_SlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"":      slog.LevelInfo,
		"nope":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := (Log{Level: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
