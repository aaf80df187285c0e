package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models planline.yml.
type Config struct {
	Project struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		WorkspaceID string `yaml:"workspace_id"`
	} `yaml:"project"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret      string   `yaml:"jwt_secret"`
		APIKeys        []string `yaml:"api_keys"`
		AllowDevTokens bool     `yaml:"allow_dev_tokens"`
	} `yaml:"auth"`
	Notify struct {
		Mode string `yaml:"mode"`
	} `yaml:"notify"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pl project create", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Project.Name == "" {
		return fmt.Errorf("config.project.name is required")
	}
	switch c.Notify.Mode {
	case "", "log", "none":
	default:
		return fmt.Errorf("config.notify.mode must be log or none")
	}
	for _, key := range c.Auth.APIKeys {
		if key == "" {
			return fmt.Errorf("config.auth.api_keys contains an empty key")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "planline.yml")
}

// Default returns the default Config struct for a project.
func Default(projectID, projectName string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	cfg.Project.Name = projectName
	cfg.Server.Addr = ":8080"
	cfg.Server.BasePath = "/v0"
	cfg.Notify.Mode = "log"
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/v0"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Write saves the config to the workspace as YAML.
func (c *Config) Write(workspace string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(workspace), data, 0o644)
}
