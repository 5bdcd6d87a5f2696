package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "CARDGOLF"

type Config struct {
	Twitter  TwitterConfig
	Scryfall ScryfallConfig
	Contest  ContestConfig
	Storage  StorageConfig
	Server   ServerConfig

	HTTPTimeout time.Duration
	LoggingDir  string
	Verbose     bool
}

type TwitterConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
	Username       string
	APIURL         string
	UploadURL      string
}

type ScryfallConfig struct {
	APIURL    string
	UserAgent string
}

type ContestConfig struct {
	Hashtag   string
	Window    time.Duration
	Cards     int
	MaxWidth  int
	MaxHeight int
}

type StorageConfig struct {
	ContestLog  string
	ResultsDir  string
	CardDir     string
	StandingsDB string
}

type ServerConfig struct {
	Port int
}

var ErrMissingTwitterCredentials = errors.New("twitter credentials are not configured")

func setDefaults(v *viper.Viper) {
	v.SetDefault("twitter.consumer_key", "")
	v.SetDefault("twitter.consumer_secret", "")
	v.SetDefault("twitter.access_token", "")
	v.SetDefault("twitter.access_secret", "")
	v.SetDefault("twitter.username", "")
	v.SetDefault("twitter.api_url", "https://api.twitter.com/1.1")
	v.SetDefault("twitter.upload_url", "https://upload.twitter.com/1.1")

	v.SetDefault("scryfall.api_url", "https://api.scryfall.com")
	v.SetDefault("scryfall.user_agent", "cardgolf/1.0")

	v.SetDefault("contest.hashtag", "#ScryfallCardGolf")
	v.SetDefault("contest.window", "24h")
	v.SetDefault("contest.cards", 2)
	v.SetDefault("contest.max_width", 1024)
	v.SetDefault("contest.max_height", 512)

	v.SetDefault("storage.contest_log", "contests.json")
	v.SetDefault("storage.results_dir", ".")
	v.SetDefault("storage.card_dir", "cards")
	v.SetDefault("storage.standings_db", "cardgolf.db")

	v.SetDefault("server.port", 3000)

	v.SetDefault("http_timeout", "30s")
	v.SetDefault("logging_dir", "logs")
	v.SetDefault("verbose", false)
}

// Load reads the configuration file (cardgolf.yaml in the working directory when
// path is empty), then CARDGOLF_* environment variables. A .env file, if present,
// is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cardgolf")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return read(v), nil
}

func read(v *viper.Viper) *Config {
	return &Config{
		Twitter: TwitterConfig{
			ConsumerKey:    v.GetString("twitter.consumer_key"),
			ConsumerSecret: v.GetString("twitter.consumer_secret"),
			AccessToken:    v.GetString("twitter.access_token"),
			AccessSecret:   v.GetString("twitter.access_secret"),
			Username:       strings.TrimPrefix(v.GetString("twitter.username"), "@"),
			APIURL:         strings.TrimRight(v.GetString("twitter.api_url"), "/"),
			UploadURL:      strings.TrimRight(v.GetString("twitter.upload_url"), "/"),
		},
		Scryfall: ScryfallConfig{
			APIURL:    strings.TrimRight(v.GetString("scryfall.api_url"), "/"),
			UserAgent: v.GetString("scryfall.user_agent"),
		},
		Contest: ContestConfig{
			Hashtag:   v.GetString("contest.hashtag"),
			Window:    v.GetDuration("contest.window"),
			Cards:     v.GetInt("contest.cards"),
			MaxWidth:  v.GetInt("contest.max_width"),
			MaxHeight: v.GetInt("contest.max_height"),
		},
		Storage: StorageConfig{
			ContestLog:  v.GetString("storage.contest_log"),
			ResultsDir:  v.GetString("storage.results_dir"),
			CardDir:     v.GetString("storage.card_dir"),
			StandingsDB: v.GetString("storage.standings_db"),
		},
		Server: ServerConfig{
			Port: v.GetInt("server.port"),
		},
		HTTPTimeout: v.GetDuration("http_timeout"),
		LoggingDir:  v.GetString("logging_dir"),
		Verbose:     v.GetBool("verbose"),
	}
}

// RequireTwitter reports which Twitter settings are missing. Only the commands
// that post or scan need them.
func (c *Config) RequireTwitter() error {
	var missing []string
	if c.Twitter.ConsumerKey == "" {
		missing = append(missing, "twitter.consumer_key")
	}
	if c.Twitter.ConsumerSecret == "" {
		missing = append(missing, "twitter.consumer_secret")
	}
	if c.Twitter.AccessToken == "" {
		missing = append(missing, "twitter.access_token")
	}
	if c.Twitter.AccessSecret == "" {
		missing = append(missing, "twitter.access_secret")
	}
	if c.Twitter.Username == "" {
		missing = append(missing, "twitter.username")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingTwitterCredentials, strings.Join(missing, ", "))
	}
	return nil
}
