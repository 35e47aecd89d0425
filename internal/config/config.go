// Package config loads Michael's process configuration from environment
// variables, failing loudly at startup when a required variable is
// missing, in the teacher's getEnv/getEnvInt idiom.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Parser   ParserConfig
	Admin    AdminConfig
	SMTP     *SMTPConfig      // nil if not fully configured
	CalDAV   []CalDAVProvider // only fully-configured providers
	Env      string
}

// ServerConfig holds listen address and the host's IANA timezone.
type ServerConfig struct {
	Address      string
	HostTimezone string
}

// DatabaseConfig holds the embedded SQLite database location.
type DatabaseConfig struct {
	Path           string
	MigrationsPath string
}

// ParserConfig holds credentials for the external natural-language parser.
type ParserConfig struct {
	GeminiAPIKey string
}

// AdminConfig holds the single admin identity's password.
type AdminConfig struct {
	Password string
}

// SMTPConfig is present only when every required SMTP variable is set.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// CalDAVProvider is one independently-configured CalDAV account.
type CalDAVProvider struct {
	Name     string // "fastmail" or "icloud"
	URL      string
	Username string
	Password string
}

// Load reads Config from the environment. It returns an error if any
// required variable is missing; optional subsystems (SMTP, CalDAV
// providers) are individually disabled with a log notice when partially
// configured, per spec §6.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address:      getEnv("MICHAEL_ADDRESS", ":8080"),
			HostTimezone: getEnv("MICHAEL_HOST_TIMEZONE", ""),
		},
		Database: DatabaseConfig{
			Path:           getEnv("MICHAEL_DB_PATH", "michael.db"),
			MigrationsPath: getEnv("MICHAEL_MIGRATIONS_PATH", "migrations"),
		},
		Parser: ParserConfig{
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		},
		Admin: AdminConfig{
			Password: getEnv("MICHAEL_ADMIN_PASSWORD", ""),
		},
		Env: getEnv("MICHAEL_ENV", "development"),
	}

	var missing []string
	if cfg.Server.HostTimezone == "" {
		missing = append(missing, "MICHAEL_HOST_TIMEZONE")
	}
	if cfg.Parser.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.Admin.Password == "" {
		missing = append(missing, "MICHAEL_ADMIN_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %v", missing)
	}

	cfg.SMTP = loadSMTP()
	cfg.CalDAV = loadCalDAVProviders()

	return cfg, nil
}

func loadSMTP() *SMTPConfig {
	host := getEnv("SMTP_HOST", "")
	port := getEnv("SMTP_PORT", "")
	user := getEnv("SMTP_USERNAME", "")
	pass := getEnv("SMTP_PASSWORD", "")
	from := getEnv("SMTP_FROM", "")

	present := host != "" || port != "" || user != "" || pass != "" || from != ""
	if !present {
		return nil
	}
	if host == "" || port == "" || user == "" || pass == "" || from == "" {
		log.Printf("[CONFIG] SMTP partially configured; disabling email notifications")
		return nil
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		log.Printf("[CONFIG] SMTP_PORT invalid; disabling email notifications")
		return nil
	}
	return &SMTPConfig{
		Host:     host,
		Port:     portNum,
		Username: user,
		Password: pass,
		From:     from,
		FromName: getEnv("SMTP_FROM_NAME", "Michael"),
	}
}

func loadCalDAVProviders() []CalDAVProvider {
	var out []CalDAVProvider
	if p, ok := loadCalDAVProvider("fastmail", "FASTMAIL_URL", "FASTMAIL_USERNAME", "FASTMAIL_PASSWORD"); ok {
		out = append(out, p)
	}
	if p, ok := loadCalDAVProvider("icloud", "ICLOUD_URL", "ICLOUD_USERNAME", "ICLOUD_PASSWORD"); ok {
		out = append(out, p)
	}
	return out
}

func loadCalDAVProvider(name, urlKey, userKey, passKey string) (CalDAVProvider, bool) {
	url := getEnv(urlKey, "")
	user := getEnv(userKey, "")
	pass := getEnv(passKey, "")
	present := url != "" || user != "" || pass != ""
	if !present {
		return CalDAVProvider{}, false
	}
	if url == "" || user == "" || pass == "" {
		log.Printf("[CONFIG] %s CalDAV provider partially configured; disabling", name)
		return CalDAVProvider{}, false
	}
	return CalDAVProvider{Name: name, URL: url, Username: user, Password: pass}, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
