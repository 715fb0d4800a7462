// Package config loads agent configuration from an optional TOML file with
// environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Remote points at the upstream PostgREST-style store.
type Remote struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// Discord configures the webhook item-list mirror.
type Discord struct {
	WebhookURL string `toml:"webhook_url"`
	ThreadID   string `toml:"thread_id"`
	EmbedColor int    `toml:"embed_color"`
	Title      string `toml:"title"`
}

// S3 configures optional backup mirroring.
type S3 struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// Backup configures local exports.
type Backup struct {
	Dir       string `toml:"dir"`
	KeepCount int    `toml:"keep_count"`
	S3        S3     `toml:"s3"`
}

// Push configures Web Push delivery.
type Push struct {
	VAPIDPublicKey  string `toml:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key"`
	Subscriber      string `toml:"subscriber"`
}

// Config is the full agent configuration.
type Config struct {
	Port       string  `toml:"port"`
	DBPath     string  `toml:"db_path"`
	LogLevel   string  `toml:"log_level"`
	ManagerPIN string  `toml:"manager_pin"`
	Locale     string  `toml:"locale"`
	Remote     Remote  `toml:"remote"`
	Discord    Discord `toml:"discord"`
	Backup     Backup  `toml:"backup"`
	Push       Push    `toml:"push"`
}

func defaults() Config {
	return Config{
		Port:     "8080",
		DBPath:   "./data/itshard.db",
		LogLevel: "info",
		Locale:   "th",
		Backup: Backup{
			Dir:       "./data/backups",
			KeepCount: 30,
		},
	}
}

// Load reads path (when non-empty and present) over the defaults, then
// applies environment overrides. A missing file is not an error; a file that
// fails to parse is.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if cfg.Remote.BaseURL == "" {
		return Config{}, fmt.Errorf("remote base URL is required (remote.base_url or ITSHARD_REMOTE_URL)")
	}
	if cfg.ManagerPIN == "" {
		return Config{}, fmt.Errorf("manager PIN is required (manager_pin or ITSHARD_MANAGER_PIN)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "ITSHARD_PORT")
	setString(&c.DBPath, "ITSHARD_DB_PATH")
	setString(&c.LogLevel, "ITSHARD_LOG_LEVEL")
	setString(&c.ManagerPIN, "ITSHARD_MANAGER_PIN")
	setString(&c.Locale, "ITSHARD_LOCALE")

	setString(&c.Remote.BaseURL, "ITSHARD_REMOTE_URL")
	setString(&c.Remote.APIKey, "ITSHARD_REMOTE_API_KEY")

	setString(&c.Discord.WebhookURL, "ITSHARD_DISCORD_WEBHOOK_URL")
	setString(&c.Discord.ThreadID, "ITSHARD_DISCORD_THREAD_ID")
	setString(&c.Discord.Title, "ITSHARD_DISCORD_TITLE")
	setInt(&c.Discord.EmbedColor, "ITSHARD_DISCORD_EMBED_COLOR")

	setString(&c.Backup.Dir, "ITSHARD_BACKUP_DIR")
	setInt(&c.Backup.KeepCount, "ITSHARD_BACKUP_KEEP_COUNT")
	setString(&c.Backup.S3.Endpoint, "ITSHARD_S3_ENDPOINT")
	setString(&c.Backup.S3.Bucket, "ITSHARD_S3_BUCKET")
	setString(&c.Backup.S3.Region, "ITSHARD_S3_REGION")
	setString(&c.Backup.S3.AccessKey, "ITSHARD_S3_ACCESS_KEY")
	setString(&c.Backup.S3.SecretKey, "ITSHARD_S3_SECRET_KEY")

	setString(&c.Push.VAPIDPublicKey, "ITSHARD_VAPID_PUBLIC_KEY")
	setString(&c.Push.VAPIDPrivateKey, "ITSHARD_VAPID_PRIVATE_KEY")
	setString(&c.Push.Subscriber, "ITSHARD_PUSH_SUBSCRIBER")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
