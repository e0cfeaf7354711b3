package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSetting 表示必需的环境变量未设置。
var ErrMissingSetting = errors.New("required setting is missing")

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Webhook  WebhookConfig
	Auth     AuthConfig
	Session  SessionConfig
	LogLevel string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	webhook, err := loadWebhookConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Webhook:  webhook,
		Auth:     auth,
		Session:  session,
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// WebhookConfig 描述工作流 webhook 的调用配置。
type WebhookConfig struct {
	URL string
	// Timeout 为 0 时不设超时。
	Timeout time.Duration
}

func loadWebhookConfig() (WebhookConfig, error) {
	rawURL, err := requireURLEnv("WEBHOOK_URL")
	if err != nil {
		return WebhookConfig{}, err
	}

	timeout, err := parseOptionalDurationEnv("WEBHOOK_TIMEOUT")
	if err != nil {
		return WebhookConfig{}, err
	}

	return WebhookConfig{URL: rawURL, Timeout: timeout}, nil
}

// AuthConfig 描述身份服务（Supabase Auth）配置。
type AuthConfig struct {
	URL    string
	APIKey string
}

func loadAuthConfig() (AuthConfig, error) {
	rawURL, err := requireURLEnv("SUPABASE_URL")
	if err != nil {
		return AuthConfig{}, err
	}

	key := strings.TrimSpace(os.Getenv("SUPABASE_KEY"))
	if key == "" {
		return AuthConfig{}, fmt.Errorf("SUPABASE_KEY: %w", ErrMissingSetting)
	}

	return AuthConfig{URL: strings.TrimRight(rawURL, "/"), APIKey: key}, nil
}

// SessionConfig 描述浏览器会话 cookie 配置。
type SessionConfig struct {
	CookieName string
	// HashKey 为空时进程启动时随机生成，重启后旧 cookie 失效。
	HashKey []byte
	Secure  bool
	// IdleTTL 之后未访问的会话会被清理，0 表示不清理。
	IdleTTL time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	secure, err := parseBoolEnv("SESSION_COOKIE_SECURE", false)
	if err != nil {
		return SessionConfig{}, err
	}

	idleTTL := 24 * time.Hour
	if raw, ok := os.LookupEnv("SESSION_IDLE_TTL"); ok && strings.TrimSpace(raw) != "" {
		idleTTL, err = parseOptionalDurationEnv("SESSION_IDLE_TTL")
		if err != nil {
			return SessionConfig{}, err
		}
	}

	var hashKey []byte
	if raw := strings.TrimSpace(os.Getenv("SESSION_HASH_KEY")); raw != "" {
		if len(raw) < 32 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_HASH_KEY: need at least 32 bytes, got %d", len(raw))
		}
		hashKey = []byte(raw)
	}

	return SessionConfig{
		CookieName: getEnvOrDefault("SESSION_COOKIE_NAME", "news_agent_session"),
		HashKey:    hashKey,
		Secure:     secure,
		IdleTTL:    idleTTL,
	}, nil
}

func requireURLEnv(key string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return "", fmt.Errorf("%s: %w", key, ErrMissingSetting)
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid %s value %q: expected absolute URL", key, raw)
	}
	return raw, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalDurationEnv(key string) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return val, nil
}
