package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Config is the immutable top-level configuration object. It is loaded once
// at startup and passed by reference into every component that needs it.
type Config struct {
	Logger         Logger        `yaml:"logger"`
	HTTPClient     HTTPClient    `yaml:"http_client"`
	Firewall       Firewall      `yaml:"firewall"`
	SSH            SSH           `yaml:"ssh"`
	FilePerms      FilePerms     `yaml:"file_permissions"`
	Projects       []Project     `yaml:"projects"`
	SSL            SSL           `yaml:"ssl"`
	FailedLogins   FailedLogins  `yaml:"failed_logins"`
	Suspicious     Suspicious    `yaml:"suspicious_activity"`
	Remediation    Remediation   `yaml:"remediation"`
	Notifications  Notifications `yaml:"notifications"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type Logger struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type HTTPClient struct {
	Timeout          time.Duration `yaml:"timeout"`
	RetryCount       int           `yaml:"retry_count"`
	RetryWaitTime    time.Duration `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration `yaml:"retry_max_wait_time"`
}

type Firewall struct {
	// ManagementPort must be allowed through the firewall before it is ever
	// activated. Losing it means losing remote access to the host.
	ManagementPort int   `yaml:"management_port"`
	AllowedPorts   []int `yaml:"allowed_ports"`
	DangerousPorts []int `yaml:"dangerous_ports"`
}

type SSH struct {
	ConfigPath string `yaml:"config_path"`
	// Requirements maps sshd_config directives to their required values,
	// e.g. PasswordAuthentication: "no".
	Requirements map[string]string `yaml:"requirements"`
}

type FilePerms struct {
	// MaxMode is the most permissive acceptable mode for secret files,
	// octal string form ("600").
	MaxMode        string   `yaml:"max_mode"`
	SensitiveFiles []string `yaml:"sensitive_files"`
}

type Project struct {
	Name          string `yaml:"name"`
	Path          string `yaml:"path"`
	DockerCompose string `yaml:"docker_compose"`
}

type SSL struct {
	Domains      []string `yaml:"domains"`
	WarningDays  int      `yaml:"warning_days_before_expiry"`
	CriticalDays int      `yaml:"critical_days_before_expiry"`
}

type FailedLogins struct {
	WarningThreshold  int `yaml:"warning_threshold"`
	CriticalThreshold int `yaml:"critical_threshold"`
	WindowHours       int `yaml:"window_hours"`
}

type Suspicious struct {
	CPUThreshold    float64  `yaml:"cpu_threshold"`
	ProcessNames    []string `yaml:"suspicious_process_names"`
	SuspiciousPorts []int    `yaml:"suspicious_ports"`
}

type Remediation struct {
	Enabled bool `yaml:"enabled"`
	// AutoFix lists the action classes (or individual fix identifiers)
	// permitted to run without operator interaction.
	AutoFix     []string `yaml:"auto_fix"`
	BackupDir   string   `yaml:"backup_dir"`
	MaxSessions int      `yaml:"max_sessions"`
}

type Notifications struct {
	Slack Slack `yaml:"slack"`
}

type Slack struct {
	Enabled           bool   `yaml:"enabled"`
	WebhookURL        string `yaml:"webhook_url"`
	MentionOnCritical string `yaml:"mention_on_critical"`
	IncludeHostname   bool   `yaml:"include_hostname"`
}

// LoadConfig reads and validates the YAML configuration at configPath.
func LoadConfig(configPath string) (*Config, error) {
	s, err := os.Stat(configPath)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", configPath, err)
	}
	if s.IsDir() {
		return nil, fmt.Errorf("config path %q is a directory, not a file", configPath)
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &Config{}
	d := yaml.NewDecoder(file)
	if err := d.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", configPath, err)
	}

	applyDefaults(cfg)
	cfg.Notifications.Slack.WebhookURL = ExpandEnvPlaceholder(cfg.Notifications.Slack.WebhookURL)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration carrying only the built-in defaults, for
// hosts that have no config file yet. Remediation stays disabled because
// AutoFix is empty, so every command is safe to run on it.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in the values the original deployment relied on when
// the YAML omitted them.
func applyDefaults(cfg *Config) {
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.HTTPClient.Timeout == 0 {
		cfg.HTTPClient.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient.RetryCount == 0 {
		cfg.HTTPClient.RetryCount = 3
	}
	if cfg.HTTPClient.RetryWaitTime == 0 {
		cfg.HTTPClient.RetryWaitTime = 1 * time.Second
	}
	if cfg.HTTPClient.RetryMaxWaitTime == 0 {
		cfg.HTTPClient.RetryMaxWaitTime = 5 * time.Second
	}
	if cfg.Firewall.ManagementPort == 0 {
		cfg.Firewall.ManagementPort = 22
	}
	if cfg.SSH.ConfigPath == "" {
		cfg.SSH.ConfigPath = "/etc/ssh/sshd_config"
	}
	if cfg.FilePerms.MaxMode == "" {
		cfg.FilePerms.MaxMode = "600"
	}
	if cfg.SSL.WarningDays == 0 {
		cfg.SSL.WarningDays = 14
	}
	if cfg.SSL.CriticalDays == 0 {
		cfg.SSL.CriticalDays = 7
	}
	if cfg.FailedLogins.WarningThreshold == 0 {
		cfg.FailedLogins.WarningThreshold = 20
	}
	if cfg.FailedLogins.CriticalThreshold == 0 {
		cfg.FailedLogins.CriticalThreshold = 100
	}
	if cfg.FailedLogins.WindowHours == 0 {
		cfg.FailedLogins.WindowHours = 24
	}
	if cfg.Suspicious.CPUThreshold == 0 {
		cfg.Suspicious.CPUThreshold = 90
	}
	if cfg.Remediation.BackupDir == "" {
		cfg.Remediation.BackupDir = "/opt/vps-sentinel/backups"
	}
	if cfg.Remediation.MaxSessions == 0 {
		cfg.Remediation.MaxSessions = 50
	}
}

// ValidateConfig rejects configurations that would make guarded remediation
// unsafe to run.
func ValidateConfig(cfg *Config) error {
	if cfg.Firewall.ManagementPort < 1 || cfg.Firewall.ManagementPort > 65535 {
		return fmt.Errorf("firewall.management_port %d is out of range", cfg.Firewall.ManagementPort)
	}
	for _, p := range cfg.Firewall.AllowedPorts {
		if p < 1 || p > 65535 {
			return fmt.Errorf("firewall.allowed_ports contains invalid port %d", p)
		}
	}
	if cfg.Remediation.MaxSessions < 1 {
		return fmt.Errorf("remediation.max_sessions must be positive, got %d", cfg.Remediation.MaxSessions)
	}
	if _, err := ParseOctalMode(cfg.FilePerms.MaxMode); err != nil {
		return fmt.Errorf("file_permissions.max_mode: %w", err)
	}
	return nil
}

// ExpandEnvPlaceholder resolves "${VAR}" style values from the environment.
// Values without the placeholder syntax are returned unchanged.
func ExpandEnvPlaceholder(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// ParseOctalMode converts an octal mode string such as "600" to os.FileMode.
func ParseOctalMode(mode string) (os.FileMode, error) {
	if mode == "" {
		return 0, fmt.Errorf("empty mode string")
	}
	var parsed uint32
	for _, c := range mode {
		if c < '0' || c > '7' {
			return 0, fmt.Errorf("invalid octal mode %q", mode)
		}
		parsed = parsed<<3 | uint32(c-'0')
	}
	if parsed > 0o777 {
		return 0, fmt.Errorf("mode %q out of range", mode)
	}
	return os.FileMode(parsed), nil
}
