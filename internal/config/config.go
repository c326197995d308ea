// Package config loads the server and agent process configuration files:
// listen/connect addresses, TLS material, and logging verbosity. Grounded
// on the teacher's YAML-driven manifest loading (cmd/warren/apply.go)
// applied here to process config instead of workload manifests.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TLSFiles names the certificate material a Server or Agent config may
// reference; all three are optional, meaning TLS is disabled.
type TLSFiles struct {
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	CAFile   string `yaml:"caFile"`
}

// Enabled reports whether every TLS file path is set.
func (t TLSFiles) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != "" && t.CAFile != ""
}

// Server is the ankd process configuration.
type Server struct {
	ListenAddress string   `yaml:"listenAddress"`
	LogLevel      string   `yaml:"logLevel"`
	JSONLogs      bool     `yaml:"jsonLogs"`
	TLS           TLSFiles `yaml:"tls"`
}

// Agent is the ankagent process configuration.
type Agent struct {
	AgentName     string   `yaml:"agentName"`
	ServerAddress string   `yaml:"serverAddress"`
	LogLevel      string   `yaml:"logLevel"`
	JSONLogs      bool     `yaml:"jsonLogs"`
	RunFolder     string   `yaml:"runFolder"`
	TLS           TLSFiles `yaml:"tls"`
}

// LoadServer reads and parses a Server config file at path.
func LoadServer(path string) (Server, error) {
	var cfg Server
	if err := load(path, &cfg); err != nil {
		return Server{}, err
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "0.0.0.0:25551"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// LoadAgent reads and parses an Agent config file at path.
func LoadAgent(path string) (Agent, error) {
	var cfg Agent
	if err := load(path, &cfg); err != nil {
		return Agent{}, err
	}
	if cfg.ServerAddress == "" {
		cfg.ServerAddress = "127.0.0.1:25551"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RunFolder == "" {
		cfg.RunFolder = "/run/ankagent"
	}
	return cfg, nil
}

func load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
