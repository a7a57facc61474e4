package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Client holds the terminal client's configuration.
type Client struct {
	Server ServerConfig
	Auth   AuthConfig
	Chat   ChatConfig
	Log    LogConfig
}

// ServerConfig points at the backend.
type ServerConfig struct {
	URL string
}

// AuthConfig controls the login flow. With Enabled false the client runs
// without a session and sends as Chat.Author.
type AuthConfig struct {
	Enabled  bool
	Username string
}

type ChatConfig struct {
	Author string
}

type LogConfig struct {
	Path  string
	Level string
}

// LoadClient reads configuration from file and env. Env var overrides use
// prefix CHATTOUR_.
func LoadClient() (Client, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.username", "")
	v.SetDefault("chat.author", "Go User")
	v.SetDefault("log.path", filepath.Join(home, ".chattour", "chattour.log"))
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	if cfgPath := os.Getenv("CHATTOUR_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "chattour"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CHATTOUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Client{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return Client{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Server.URL = strings.TrimRight(c.Server.URL, "/")
	return c, nil
}
