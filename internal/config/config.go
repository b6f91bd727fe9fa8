package config

import (
	"fmt"
	"os"
	"time"

	"github.com/challenge-forums/processor/internal/contracts"
	"github.com/spf13/viper"
)

// Topics holds the consumed topic names.
type Topics struct {
	ChallengeCreate string
	ChallengeUpdate string
	ResourceCreate  string
	ResourceDelete  string
	Notifications   string
}

// All returns every consumed topic, in a stable order.
func (t Topics) All() []string {
	return []string{
		t.ChallengeCreate,
		t.ChallengeUpdate,
		t.ResourceCreate,
		t.ResourceDelete,
		t.Notifications,
	}
}

// Boards configures the category/role forum platform adapter.
type Boards struct {
	Enabled        bool
	APIURL         string
	AdminToken     string
	Timeout        time.Duration
	DefaultRole    string
	TitleMaxLength int
}

// Chat configures the group-model chat platform adapter.
type Chat struct {
	Enabled   bool
	APIURL    string
	AuthToken string
	UserID    string
	Timeout   time.Duration
}

// ChallengeAPI configures the upstream identity/challenge API client.
type ChallengeAPI struct {
	BaseURL      string
	AuthURL      string
	Audience     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type Config struct {
	LogLevel       string
	HTTPAddr       string
	NATSURL        string
	QueueGroup     string
	ConnectTimeout time.Duration
	DatabaseURL    string
	RootURL        string
	TemplateFile   string
	Topics         Topics
	Boards         Boards
	Chat           Chat
	ChallengeAPI   ChallengeAPI
}

// Load reads configuration from the environment, with an optional YAML file
// pointed at by PROCESSOR_CONFIG layered underneath.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("PROCESSOR_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		LogLevel:       v.GetString("LOG_LEVEL"),
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		NATSURL:        v.GetString("NATS_URL"),
		QueueGroup:     v.GetString("QUEUE_GROUP"),
		ConnectTimeout: v.GetDuration("NATS_CONNECT_TIMEOUT"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		RootURL:        v.GetString("ROOT_URL"),
		TemplateFile:   v.GetString("TEMPLATE_FILE"),
		Topics: Topics{
			ChallengeCreate: v.GetString("TOPIC_CHALLENGE_CREATE"),
			ChallengeUpdate: v.GetString("TOPIC_CHALLENGE_UPDATE"),
			ResourceCreate:  v.GetString("TOPIC_RESOURCE_CREATE"),
			ResourceDelete:  v.GetString("TOPIC_RESOURCE_DELETE"),
			Notifications:   v.GetString("TOPIC_NOTIFICATIONS"),
		},
		Boards: Boards{
			Enabled:        v.GetBool("BOARDS_ENABLED"),
			APIURL:         v.GetString("BOARDS_API_URL"),
			AdminToken:     v.GetString("BOARDS_ADMIN_TOKEN"),
			Timeout:        v.GetDuration("BOARDS_TIMEOUT"),
			DefaultRole:    v.GetString("BOARDS_DEFAULT_ROLE"),
			TitleMaxLength: v.GetInt("FORUM_TITLE_MAX_LENGTH"),
		},
		Chat: Chat{
			Enabled:   v.GetBool("CHAT_ENABLED"),
			APIURL:    v.GetString("CHAT_API_URL"),
			AuthToken: v.GetString("CHAT_AUTH_TOKEN"),
			UserID:    v.GetString("CHAT_USER_ID"),
			Timeout:   v.GetDuration("CHAT_TIMEOUT"),
		},
		ChallengeAPI: ChallengeAPI{
			BaseURL:      v.GetString("CHALLENGE_API_URL"),
			AuthURL:      v.GetString("CHALLENGE_AUTH_URL"),
			Audience:     v.GetString("CHALLENGE_AUTH_AUDIENCE"),
			ClientID:     v.GetString("CHALLENGE_CLIENT_ID"),
			ClientSecret: v.GetString("CHALLENGE_CLIENT_SECRET"),
			Timeout:      v.GetDuration("CHALLENGE_API_TIMEOUT"),
		},
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8082")
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("QUEUE_GROUP", "forums-processor")
	v.SetDefault("NATS_CONNECT_TIMEOUT", 20*time.Second)
	v.SetDefault("ROOT_URL", "https://www.example.com")
	v.SetDefault("TEMPLATE_FILE", "templates/forums.yaml")
	v.SetDefault("TOPIC_CHALLENGE_CREATE", contracts.DefaultChallengeCreateTopic)
	v.SetDefault("TOPIC_CHALLENGE_UPDATE", contracts.DefaultChallengeUpdateTopic)
	v.SetDefault("TOPIC_RESOURCE_CREATE", contracts.DefaultResourceCreateTopic)
	v.SetDefault("TOPIC_RESOURCE_DELETE", contracts.DefaultResourceDeleteTopic)
	v.SetDefault("TOPIC_NOTIFICATIONS", contracts.DefaultNotificationsTopic)
	v.SetDefault("BOARDS_ENABLED", false)
	v.SetDefault("BOARDS_TIMEOUT", 15*time.Second)
	v.SetDefault("BOARDS_DEFAULT_ROLE", "Member")
	v.SetDefault("FORUM_TITLE_MAX_LENGTH", 100)
	v.SetDefault("CHAT_ENABLED", false)
	v.SetDefault("CHAT_TIMEOUT", 15*time.Second)
	v.SetDefault("CHALLENGE_API_TIMEOUT", 15*time.Second)
}

func (c Config) validate() error {
	if c.Boards.Enabled && c.Boards.APIURL == "" {
		return fmt.Errorf("BOARDS_API_URL is required when BOARDS_ENABLED is set")
	}
	if c.Chat.Enabled && c.Chat.APIURL == "" {
		return fmt.Errorf("CHAT_API_URL is required when CHAT_ENABLED is set")
	}
	if (c.Boards.Enabled || c.Chat.Enabled) && c.ChallengeAPI.BaseURL == "" {
		return fmt.Errorf("CHALLENGE_API_URL is required when a sync service is enabled")
	}
	if c.Boards.TitleMaxLength < 4 {
		return fmt.Errorf("FORUM_TITLE_MAX_LENGTH must be at least 4")
	}
	return nil
}
