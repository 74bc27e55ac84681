package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paularlott/cli"
)

// Config holds the application configuration
type Config struct {
	DataDir            string
	ServerURL          string // Default management server for login
	Domain             string // Default domain for login
	ListenAddr         string
	APIAuthToken       string
	MCPAuthToken       string
	RequestTimeout     time.Duration // 0 means no client-side timeout
	InsecureSkipVerify bool
	RefreshSchedule    string // Cron spec; empty disables background refresh
}

// GetFlags returns the configuration flags. They are global so every
// subcommand can read them, and each one can also be set from a GWC_ variable
// or the .env file.
func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:         "data-dir",
			Usage:        "Directory holding the session and clone journal database",
			DefaultValue: "./data",
			EnvVars:      []string{"GWC_DATA_DIR"},
			Global:       true,
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Management server URL (https:// is assumed when no scheme is given)",
			EnvVars: []string{"GWC_SERVER_URL"},
			Global:  true,
		},
		&cli.StringFlag{
			Name:    "domain",
			Usage:   "Management domain to log in to",
			EnvVars: []string{"GWC_DOMAIN"},
			Global:  true,
		},
		&cli.StringFlag{
			Name:         "listen-addr",
			Usage:        "Console server listen address",
			DefaultValue: ":8080",
			EnvVars:      []string{"GWC_LISTEN_ADDR"},
			Global:       true,
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "Bearer token required on /api/ when set",
			EnvVars: []string{"GWC_API_TOKEN"},
			Global:  true,
		},
		&cli.StringFlag{
			Name:    "mcp-token",
			Usage:   "Bearer token required on /mcp when set",
			EnvVars: []string{"GWC_MCP_TOKEN"},
			Global:  true,
		},
		&cli.IntFlag{
			Name:         "request-timeout",
			Usage:        "Management API request timeout in seconds (0 disables)",
			DefaultValue: 0,
			EnvVars:      []string{"GWC_REQUEST_TIMEOUT"},
			Global:       true,
		},
		&cli.BoolFlag{
			Name:         "insecure",
			Usage:        "Skip TLS certificate verification of the management server",
			DefaultValue: false,
			EnvVars:      []string{"GWC_INSECURE_SKIP_VERIFY"},
			Global:       true,
		},
		&cli.StringFlag{
			Name:    "refresh-schedule",
			Usage:   "Cron schedule for background gateway refresh, e.g. \"@every 5m\" (empty disables)",
			EnvVars: []string{"GWC_REFRESH_SCHEDULE"},
			Global:  true,
		},
	}
}

// Load builds the configuration from the parsed command flags. Flag values
// take priority over environment variables and .env entries, which take
// priority over defaults.
func Load(cmd *cli.Command) (*Config, error) {
	cfg := &Config{
		DataDir:            cmd.GetString("data-dir"),
		ServerURL:          cmd.GetString("server"),
		Domain:             cmd.GetString("domain"),
		ListenAddr:         cmd.GetString("listen-addr"),
		APIAuthToken:       cmd.GetString("api-token"),
		MCPAuthToken:       cmd.GetString("mcp-token"),
		RequestTimeout:     time.Duration(cmd.GetInt("request-timeout")) * time.Second,
		InsecureSkipVerify: cmd.GetBool("insecure"),
		RefreshSchedule:    cmd.GetString("refresh-schedule"),
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	c.ServerURL = NormalizeServerURL(c.ServerURL)
	c.Domain = strings.TrimSpace(c.Domain)
	c.RefreshSchedule = strings.TrimSpace(c.RefreshSchedule)

	if c.RequestTimeout < 0 {
		return errors.New("request timeout must not be negative")
	}
	return nil
}

// NormalizeServerURL trims whitespace and trailing slashes and adds https://
// when no scheme is given. An empty input stays empty.
func NormalizeServerURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return strings.TrimRight(u, "/")
}

// IsAPIAuthEnabled checks if API authentication is configured
func (c *Config) IsAPIAuthEnabled() bool {
	return c.APIAuthToken != ""
}

// IsMCPAuthEnabled reports whether /mcp requires a bearer token
func (c *Config) IsMCPAuthEnabled() bool {
	return c.MCPAuthToken != ""
}

// String returns a short description for startup logs. Tokens are never
// included.
func (c *Config) String() string {
	return fmt.Sprintf("data_dir=%s listen_addr=%s server=%s api_auth=%t mcp_auth=%t refresh=%q",
		c.DataDir, c.ListenAddr, c.ServerURL, c.IsAPIAuthEnabled(), c.IsMCPAuthEnabled(), c.RefreshSchedule)
}
