package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"group0-recovery/internal/logger"
	"group0-recovery/internal/query"
	"group0-recovery/internal/recovery"
	"group0-recovery/internal/remote"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	LogLevel string         `yaml:"log_level" json:"log_level"`
	Cluster  ClusterConfig  `yaml:"cluster" json:"cluster"`
	SSH      SSHConfig      `yaml:"ssh" json:"ssh"`
	CQL      CQLConfig      `yaml:"cql" json:"cql"`
	Recovery RecoveryConfig `yaml:"recovery" json:"recovery"`
}

// ClusterConfig は接続先の設定
type ClusterConfig struct {
	ContactPoints []string `yaml:"contact_points" json:"contact_points"`
	Nodetool      string   `yaml:"nodetool" json:"nodetool"`
}

// SSHConfig はリモート実行の設定
type SSHConfig struct {
	User        string `yaml:"user" json:"user"`
	Key         string `yaml:"key" json:"key"`
	Password    string `yaml:"password" json:"password"`
	Port        int    `yaml:"port" json:"port"`
	KnownHosts  string `yaml:"known_hosts" json:"known_hosts"`
	DialTimeout string `yaml:"dial_timeout" json:"dial_timeout"`
}

// CQLConfig はクエリ接続の設定
type CQLConfig struct {
	Port           int    `yaml:"port" json:"port"`
	Username       string `yaml:"username" json:"username"`
	Password       string `yaml:"password" json:"password"`
	Timeout        string `yaml:"timeout" json:"timeout"`
	ConnectTimeout string `yaml:"connect_timeout" json:"connect_timeout"`
}

// RecoveryConfig はリカバリー手順の設定
type RecoveryConfig struct {
	LeaderTimeout   string `yaml:"leader_timeout" json:"leader_timeout"`
	FollowerTimeout string `yaml:"follower_timeout" json:"follower_timeout"`
	PollInterval   string `yaml:"poll_interval" json:"poll_interval"`
	Parallelism     int    `yaml:"parallelism" json:"parallelism"`
	ResetLocalState *bool  `yaml:"reset_local_state" json:"reset_local_state"`
	RemoveMarker    *bool  `yaml:"remove_marker" json:"remove_marker"`
	MarkerPath      string `yaml:"marker_path" json:"marker_path"`
	StopCommand     string `yaml:"stop_command" json:"stop_command"`
	StartCommand    string `yaml:"start_command" json:"start_command"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// parseDuration は空文字列ならfallbackを返す
func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return fallback, fmt.Errorf("%s must be non-negative", name)
	}
	return d, nil
}

// parsePositiveDuration はparseDurationと同じだが0も拒否する
func parsePositiveDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	d, err := parseDuration(name, value, fallback)
	if err != nil {
		return fallback, err
	}
	if d == 0 {
		return fallback, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

// ToOrchestratorConfig はFileConfigをrecovery.Configに変換する
func (f *FileConfig) ToOrchestratorConfig() (recovery.Config, error) {
	rc := f.Recovery

	// デフォルト値の設定
	config := recovery.DefaultConfig()

	var err error
	if config.LeaderTimeout, err = parsePositiveDuration("recovery.leader_timeout", rc.LeaderTimeout, config.LeaderTimeout); err != nil {
		return config, err
	}
	if config.FollowerTimeout, err = parsePositiveDuration("recovery.follower_timeout", rc.FollowerTimeout, config.FollowerTimeout); err != nil {
		return config, err
	}
	if config.Lifecycle.PollInterval, err = parseDuration("recovery.poll_interval", rc.PollInterval, config.Lifecycle.PollInterval); err != nil {
		return config, err
	}

	if rc.Parallelism > 0 {
		config.Parallelism = rc.Parallelism
	}
	if rc.ResetLocalState != nil {
		config.ResetLocalState = *rc.ResetLocalState
	}
	if rc.RemoveMarker != nil {
		config.RemoveMarker = *rc.RemoveMarker
	}

	// Lifecycle設定
	if rc.MarkerPath != "" {
		config.Lifecycle.MarkerPath = rc.MarkerPath
	}
	if rc.StopCommand != "" {
		config.Lifecycle.StopCommand = rc.StopCommand
	}
	if rc.StartCommand != "" {
		config.Lifecycle.StartCommand = rc.StartCommand
	}

	return config, nil
}

// ToSSHConfig はFileConfigをremote.SSHConfigに変換する
func (f *FileConfig) ToSSHConfig() (remote.SSHConfig, error) {
	sc := f.SSH
	config := remote.DefaultSSHConfig()

	config.User = sc.User
	config.KeyPath = expandHome(sc.Key)
	config.Password = sc.Password
	config.KnownHostsPath = expandHome(sc.KnownHosts)
	if sc.Port > 0 {
		config.Port = sc.Port
	}

	var err error
	if config.DialTimeout, err = parseDuration("ssh.dial_timeout", sc.DialTimeout, config.DialTimeout); err != nil {
		return config, err
	}
	return config, nil
}

// ToCQLConfig はFileConfigをquery.CQLConfigに変換する
func (f *FileConfig) ToCQLConfig() (query.CQLConfig, error) {
	cc := f.CQL
	config := query.DefaultCQLConfig()

	config.Username = cc.Username
	config.Password = cc.Password
	if cc.Port > 0 {
		config.Port = cc.Port
	}

	var err error
	if config.Timeout, err = parseDuration("cql.timeout", cc.Timeout, config.Timeout); err != nil {
		return config, err
	}
	if config.ConnectTimeout, err = parseDuration("cql.connect_timeout", cc.ConnectTimeout, config.ConnectTimeout); err != nil {
		return config, err
	}
	return config, nil
}

// Level はログレベルを返す（未設定ならInfo）
func (f *FileConfig) Level() (logger.Level, error) {
	if f.LogLevel == "" {
		return logger.LevelInfo, nil
	}
	return logger.ParseLevel(f.LogLevel)
}

// Nodetool は管理ツールのパスを返す
func (f *FileConfig) Nodetool() string {
	if f.Cluster.Nodetool == "" {
		return "nodetool"
	}
	return f.Cluster.Nodetool
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate は設定を検証する
// 接続先と認証情報は実行前に必要なため、コマンドラインでの上書き後に呼ぶ
func (f *FileConfig) Validate() error {
	if len(f.Cluster.ContactPoints) == 0 {
		return fmt.Errorf("cluster.contact_points must not be empty")
	}
	for _, addr := range f.Cluster.ContactPoints {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("cluster.contact_points must not contain empty addresses")
		}
	}

	if f.SSH.User == "" {
		return fmt.Errorf("ssh.user is required")
	}
	if f.SSH.Key == "" && f.SSH.Password == "" {
		return fmt.Errorf("ssh.key or ssh.password is required")
	}
	if f.SSH.Port < 0 || f.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 0 and 65535")
	}
	if f.CQL.Port < 0 || f.CQL.Port > 65535 {
		return fmt.Errorf("cql.port must be between 0 and 65535")
	}
	if f.CQL.Password != "" && f.CQL.Username == "" {
		return fmt.Errorf("cql.username is required when cql.password is set")
	}

	if f.Recovery.Parallelism < 0 {
		return fmt.Errorf("recovery.parallelism must be non-negative")
	}

	if _, err := f.Level(); err != nil {
		return err
	}
	if _, err := f.ToOrchestratorConfig(); err != nil {
		return err
	}
	if _, err := f.ToSSHConfig(); err != nil {
		return err
	}
	if _, err := f.ToCQLConfig(); err != nil {
		return err
	}

	return nil
}
