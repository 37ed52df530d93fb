// Package config loads server and client configuration from YAML files.
// A missing file is not an error: defaults apply.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the match-making server.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        uint16 `yaml:"port"`
	MaxClients  int    `yaml:"max_clients"`

	// Optional match-history database
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the optional
// match-history store. Disabled by default; the server never requires it.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Client holds all configuration for the CLI client.
type Client struct {
	ServerIP   string `yaml:"server_ip"`
	ServerPort uint16 `yaml:"server_port"`
	LoginName  string `yaml:"login_name"` // optional; prompted/flagged otherwise
}

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		BindAddress: "0.0.0.0",
		Port:        44942,
		MaxClients:  256,
		Database: DatabaseConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "reversi",
			Password: "reversi",
			DBName:  "reversi",
			SSLMode: "disable",
		},
	}
}

// DefaultClient returns Client config with sensible defaults.
func DefaultClient() Client {
	return Client{
		ServerIP:   "127.0.0.1",
		ServerPort: 44942,
	}
}

// LoadServer loads server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadClient loads client config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func load(path string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}
