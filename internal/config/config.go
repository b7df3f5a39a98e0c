package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config models the instance settings stored as the singleton row in the
// database and importable from alertline.yml.
type Config struct {
	Instance struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"instance"`
	Auth struct {
		// AdminRole is the JWT role that may run administrative operations
		// such as the template migration.
		AdminRole string `yaml:"admin_role"`
	} `yaml:"auth"`
	Notifications struct {
		// AllowedKinds restricts which channel kinds may be created. Empty
		// means all kinds.
		AllowedKinds []string `yaml:"allowed_kinds"`
	} `yaml:"notifications"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return fmt.Errorf("config.instance.id is required")
	}
	if c.Auth.AdminRole == "" {
		return fmt.Errorf("config.auth.admin_role is required")
	}
	for _, k := range c.Notifications.AllowedKinds {
		switch k {
		case "work_item", "issue", "webhook":
		default:
			return fmt.Errorf("config.notifications.allowed_kinds contains unknown kind %q", k)
		}
	}
	return nil
}

// KindAllowed reports whether the given channel kind may be created.
func (c *Config) KindAllowed(kind string) bool {
	if len(c.Notifications.AllowedKinds) == 0 {
		return true
	}
	for _, k := range c.Notifications.AllowedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Default returns the default Config struct for an instance.
func Default(instanceID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, instanceID)), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML renders the config back to YAML.
func (c *Config) ToYAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const defaultTemplate = `instance:
  id: %s
  name: Alertline

auth:
  admin_role: admin

notifications:
  allowed_kinds: []
`
