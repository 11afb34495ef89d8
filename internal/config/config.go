package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of one alarm display node.
type Config struct {
	// Hostname identifies the node; the per-device topic is derived from it.
	Hostname string `yaml:"hostname"`
	// LogLevel is the minimum level of log entries (debug, info, warn, error).
	LogLevel string `yaml:"log_level,omitempty"`
	// Broker holds the MQTT broker connection parameters.
	Broker Broker `yaml:"broker"`
	// Topics holds the MQTT topic names.
	Topics Topics `yaml:"topics"`
	// Timings holds the engine intervals and windows.
	Timings Timings `yaml:"timings"`
	// MaxReconnectAttempts is the number of quick retries before the long backoff.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
	// MaxPayloadSize is the largest accepted inbound payload in bytes.
	MaxPayloadSize int `yaml:"max_payload_size"`
	// CountdownSeed is the entry delay in seconds shown when the alarm goes pending.
	CountdownSeed int `yaml:"countdown_seed"`
	// ArmAction is the action requested when the alarm is disarmed.
	ArmAction string `yaml:"arm_action"`
	// DisarmAction is the action requested when the alarm is armed.
	DisarmAction string `yaml:"disarm_action"`
	// StateFile is the path where the last authoritative state is kept across restarts.
	StateFile string `yaml:"state_file"`
	// StatusAddress is an optional listen address for the gRPC health endpoint.
	StatusAddress string `yaml:"status_address,omitempty"`
	// BadgeDevice is an optional path of a line-oriented RFID reader (serial or FIFO).
	BadgeDevice string `yaml:"badge_device,omitempty"`
	// ConsoleKeypad enables reading keypad input from the controlling terminal.
	ConsoleKeypad bool `yaml:"console_keypad"`
	// RestartMode selects what the watchdog does on a stalled loop: reboot the machine or exit the process.
	RestartMode string `yaml:"restart_mode"`
}

// Broker holds MQTT connection parameters.
type Broker struct {
	// Host is the broker hostname or IP address.
	Host string `yaml:"host"`
	// Port is the broker TCP port.
	Port int `yaml:"port"`
	// Username is the optional broker user.
	Username string `yaml:"username,omitempty"`
	// Password is the optional broker password.
	Password string `yaml:"password,omitempty"`
	// ClientID is the MQTT client identifier; defaults to the hostname.
	ClientID string `yaml:"client_id,omitempty"`
	// TLS enables an encrypted connection.
	TLS bool `yaml:"tls,omitempty"`
	// Trace logs the MQTT client's packet-level debug output regardless of log_level.
	Trace bool `yaml:"trace,omitempty"`
}

// Topics holds the MQTT topic names.
type Topics struct {
	// Display is the shared topic all display nodes subscribe to.
	Display string `yaml:"display"`
	// RFID is the outbound topic for authentication attempts.
	RFID string `yaml:"rfid"`
}

// Timings holds the engine intervals.
type Timings struct {
	// ScanSuppression is how long a repeated read of the same badge is ignored.
	ScanSuppression time.Duration `yaml:"scan_suppression"`
	// PasswordTimeout cancels a partial PIN after this much inactivity.
	PasswordTimeout time.Duration `yaml:"password_timeout"`
	// DisplayRefresh is the cadence redraw interval.
	DisplayRefresh time.Duration `yaml:"display_refresh"`
	// CountdownInterval is the countdown tick interval.
	CountdownInterval time.Duration `yaml:"countdown_interval"`
	// RetryDelay is the pause between quick reconnect attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// ReconnectDelay is the long backoff after MaxReconnectAttempts failures.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// ConnectTimeout bounds one broker connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// WatchdogTimeout is the longest tolerated gap between loop heartbeats.
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	// WatchdogInterval is how often the watchdog checks the heartbeat.
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
	// LoopInterval is the pause between control loop passes.
	LoopInterval time.Duration `yaml:"loop_interval"`
}

const (
	// DefaultConfigFilename is the default filename for node settings.
	DefaultConfigFilename = "alarm-display-settings.yaml"

	// DefaultStateFilename is the default filename for the last known state.
	DefaultStateFilename = "alarm-display-state.json"

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// DefaultBrokerPort is the plain MQTT port.
	DefaultBrokerPort = 1883

	// DefaultDisplayTopic is the shared inbound topic.
	DefaultDisplayTopic = "home/alarm/display"
	// DefaultRFIDTopic is the outbound authentication topic.
	DefaultRFIDTopic = "home/alarm/rfid"

	// RestartReboot reboots the machine when the loop stalls.
	RestartReboot = "reboot"
	// RestartExit exits the process and leaves the restart to the service manager.
	RestartExit = "exit"

	// DefaultMaxReconnectAttempts is the number of quick retries before the long backoff.
	DefaultMaxReconnectAttempts = 10
	// DefaultMaxPayloadSize is the MQTT packet limit of the node.
	DefaultMaxPayloadSize = 512
	// DefaultCountdownSeed is the entry delay in seconds.
	DefaultCountdownSeed = 30

	// DefaultArmAction is requested when a user authenticates while disarmed.
	DefaultArmAction = "arm_away"
	// DefaultDisarmAction is requested when a user authenticates while armed.
	DefaultDisarmAction = "disarm"

	// DefaultScanSuppression is the anti-bruteforce window for badges.
	DefaultScanSuppression = 3 * time.Second
	// DefaultPasswordTimeout is the keypad inactivity timeout.
	DefaultPasswordTimeout = 10 * time.Second
	// DefaultDisplayRefresh is the cadence redraw interval.
	DefaultDisplayRefresh = 5 * time.Second
	// DefaultCountdownInterval is the countdown tick.
	DefaultCountdownInterval = time.Second
	// DefaultRetryDelay is the pause between quick reconnect attempts.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultReconnectDelay is the long backoff.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultConnectTimeout bounds one connection attempt.
	DefaultConnectTimeout = 3 * time.Second
	// DefaultWatchdogTimeout is the heartbeat ceiling.
	DefaultWatchdogTimeout = 300 * time.Second
	// DefaultWatchdogInterval is the watchdog check period.
	DefaultWatchdogInterval = 10 * time.Second
	// DefaultLoopInterval is the pause between loop passes.
	DefaultLoopInterval = 20 * time.Millisecond
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBrokerHostRequired is returned when the broker host is missing.
	errBrokerHostRequired = errors.New("broker host must be provided")
	// errInvalidPort is returned for ports outside 1..65535.
	errInvalidPort = errors.New("broker port must be between 1 and 65535")
	// errInvalidTopic is returned for topics containing wildcards.
	errInvalidTopic = errors.New("topic must not be empty or contain wildcards")
	// errInvalidRestartMode is returned for unknown restart modes.
	errInvalidRestartMode = errors.New("restart mode must be reboot or exit")
	// errInvalidHostname is returned for hostnames that cannot be part of a topic.
	errInvalidHostname = errors.New("hostname must not contain '/', '+' or '#'")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file holds broker credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills defaults for omitted values.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.Broker.Host == "" {
		return errBrokerHostRequired
	}

	if settings.Broker.Port == 0 {
		settings.Broker.Port = DefaultBrokerPort
	}

	if settings.Broker.Port < 1 || settings.Broker.Port > 65535 {
		return fmt.Errorf("%w: %d", errInvalidPort, settings.Broker.Port)
	}

	if settings.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("detect hostname: %w", err)
		}

		settings.Hostname = hostname
	}

	if strings.ContainsAny(settings.Hostname, "/+#") {
		return fmt.Errorf("%w: %q", errInvalidHostname, settings.Hostname)
	}

	if settings.Broker.ClientID == "" {
		settings.Broker.ClientID = settings.Hostname
	}

	setDefault(&settings.Topics.Display, DefaultDisplayTopic)
	setDefault(&settings.Topics.RFID, DefaultRFIDTopic)

	for _, topic := range []string{settings.Topics.Display, settings.Topics.RFID} {
		if !validTopic(topic) {
			return fmt.Errorf("%w: %q", errInvalidTopic, topic)
		}
	}

	setDefault(&settings.ArmAction, DefaultArmAction)
	setDefault(&settings.DisarmAction, DefaultDisarmAction)
	setDefault(&settings.StateFile, DefaultStateFilename)
	setDefault(&settings.RestartMode, RestartReboot)

	if settings.RestartMode != RestartReboot && settings.RestartMode != RestartExit {
		return fmt.Errorf("%w: %q", errInvalidRestartMode, settings.RestartMode)
	}

	if settings.MaxReconnectAttempts <= 0 {
		settings.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	if settings.MaxPayloadSize <= 0 {
		settings.MaxPayloadSize = DefaultMaxPayloadSize
	}

	if settings.CountdownSeed <= 0 {
		settings.CountdownSeed = DefaultCountdownSeed
	}

	settings.Timings.applyDefaults()

	if settings.StatusAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.StatusAddress); err != nil {
			return fmt.Errorf("invalid status address: %w", err)
		}
	}

	return nil
}

// BrokerURL returns the broker address in the form expected by MQTT clients.
func (c *Config) BrokerURL() string {
	scheme := "tcp"
	if c.Broker.TLS {
		scheme = "ssl"
	}

	return scheme + "://" + net.JoinHostPort(c.Broker.Host, strconv.Itoa(c.Broker.Port))
}

// DeviceTopic returns the per-device inbound topic.
func (c *Config) DeviceTopic() string {
	return c.Topics.Display + "/" + c.Hostname
}

// applyDefaults replaces non-positive durations with their defaults.
func (t *Timings) applyDefaults() {
	defaults := []struct {
		value    *time.Duration
		fallback time.Duration
	}{
		{&t.ScanSuppression, DefaultScanSuppression},
		{&t.PasswordTimeout, DefaultPasswordTimeout},
		{&t.DisplayRefresh, DefaultDisplayRefresh},
		{&t.CountdownInterval, DefaultCountdownInterval},
		{&t.RetryDelay, DefaultRetryDelay},
		{&t.ReconnectDelay, DefaultReconnectDelay},
		{&t.ConnectTimeout, DefaultConnectTimeout},
		{&t.WatchdogTimeout, DefaultWatchdogTimeout},
		{&t.WatchdogInterval, DefaultWatchdogInterval},
		{&t.LoopInterval, DefaultLoopInterval},
	}

	for _, d := range defaults {
		if *d.value <= 0 {
			*d.value = d.fallback
		}
	}
}

// setDefault assigns fallback to an empty string.
func setDefault(value *string, fallback string) {
	if *value == "" {
		*value = fallback
	}
}

// validTopic reports whether topic can be published to and used as a subscription prefix.
func validTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, "+#")
}
