package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"trackline/internal/domain"
)

// Config models trackline.yml. The escalation policy is deliberately a plain
// data table so the level->roles mapping stays testable and swappable.
type Config struct {
	Org struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"org"`
	Escalation EscalationPolicy `yaml:"escalation"`
	Sweep      struct {
		Secret string `yaml:"secret"`
	} `yaml:"sweep"`
	Mail    MailConfig `yaml:"mail"`
	Storage struct {
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"storage"`
}

// EscalationPolicy drives both the automatic percentage sweep and manual
// escalation recipient resolution.
type EscalationPolicy struct {
	Levels    []EscalationLevel `yaml:"levels"`
	Reminders ReminderPolicy    `yaml:"reminders"`
}

type EscalationLevel struct {
	Level   int           `yaml:"level"`
	Percent float64       `yaml:"percent"`
	Roles   []domain.Role `yaml:"roles"`
}

type ReminderPolicy struct {
	ApproachingDays int `yaml:"approaching_days"`
	OwnerWithinDays int `yaml:"owner_within_days"`
}

type MailConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	SenderAddress string `yaml:"sender_address"`
	SenderName    string `yaml:"sender_name"`
	Enabled       bool   `yaml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.ID == "" {
		return fmt.Errorf("config.org.id is required")
	}
	if len(c.Escalation.Levels) == 0 {
		return fmt.Errorf("config.escalation.levels is required")
	}
	levels := c.Escalation.Levels
	sorted := sort.SliceIsSorted(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })
	if !sorted {
		return fmt.Errorf("config.escalation.levels must be ordered by level")
	}
	prevPercent := -1.0
	for _, lvl := range levels {
		if lvl.Level < 1 || lvl.Level > domain.MaxEscalationLevel {
			return fmt.Errorf("escalation level %d out of range 1..%d", lvl.Level, domain.MaxEscalationLevel)
		}
		if lvl.Percent <= prevPercent {
			return fmt.Errorf("escalation level %d percent must increase", lvl.Level)
		}
		prevPercent = lvl.Percent
		if lvl.Percent < 0 || lvl.Percent > 100 {
			return fmt.Errorf("escalation level %d percent must be within 0..100", lvl.Level)
		}
		if len(lvl.Roles) == 0 {
			return fmt.Errorf("escalation level %d has no recipient roles", lvl.Level)
		}
		for _, r := range lvl.Roles {
			if !domain.ValidRole(r) {
				return fmt.Errorf("escalation level %d references unknown role %s", lvl.Level, r)
			}
		}
	}
	if c.Escalation.Reminders.ApproachingDays < 0 || c.Escalation.Reminders.OwnerWithinDays < 0 {
		return fmt.Errorf("config.escalation.reminders days must not be negative")
	}
	return nil
}

// LevelFor returns the highest configured level whose percent threshold is
// reached at the given elapsed percentage, or 0 when none is.
func (p EscalationPolicy) LevelFor(percentElapsed float64) int {
	level := 0
	for _, lvl := range p.Levels {
		if percentElapsed >= lvl.Percent {
			level = lvl.Level
		}
	}
	return level
}

// RolesFor returns the recipient role set for a level. Levels without an
// explicit entry fall back to the highest configured level at or below them.
func (p EscalationPolicy) RolesFor(level int) []domain.Role {
	var roles []domain.Role
	for _, lvl := range p.Levels {
		if lvl.Level <= level {
			roles = lvl.Roles
		}
	}
	return roles
}

// Default returns the default Config struct for an organization.
func Default(orgID string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, orgID, orgID)), &cfg)
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

const defaultTemplate = `org:
  id: %s
  name: %s

escalation:
  levels:
    - level: 1
      percent: 50
      roles: [workstream_lead]
    - level: 2
      percent: 75
      roles: [workstream_lead, program_owner]
    - level: 3
      percent: 90
      roles: [workstream_lead, program_owner, platform_admin]
  reminders:
    approaching_days: 3
    owner_within_days: 1

sweep:
  secret: ""

mail:
  enabled: false
  host: localhost
  port: 587
  sender_address: noreply@trackline.local
  sender_name: Trackline

storage:
  public_base_url: https://storage.trackline.local
`
