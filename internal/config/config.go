// Package config loads the daemon configuration from flags and environment.
//
// Every setting has a flag; its default comes from the environment variable of the
// same upper-case name (WIFI_SSID, LED_ACTIVE_HIGH, FIREBASE_DB_URL, ...) and then from
// the builtin default. The resulting Config is immutable and passed by value.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/led-sync/internal/gpio"
)

// ErrConfiguration marks a configuration that must stop the daemon before any
// network activity.
var ErrConfiguration = errors.New("configuration error")

// Placeholder values from the shipped sample configuration. They must never reach a device.
const (
	PlaceholderWifiSSID     = "SEU_WIFI_SSID"
	PlaceholderWifiPassword = "SUA_SENHA_WIFI"
	PlaceholderAPIKey       = "SUA_API_KEY"
	PlaceholderDBURL        = "https://SEU-PROJETO-default-rtdb.firebaseio.com"
)

// Backend selects the cloud store implementation.
type Backend string

const (
	BackendRTDB   Backend = "rtdb"
	BackendMQTT   Backend = "mqtt"
	BackendDynamo Backend = "dynamodb"
)

// ProbeAuto derives the connectivity probe target from the backend endpoint.
const ProbeAuto = "auto"

type EnvKey string

const (
	EnvWifiSSID        EnvKey = "WIFI_SSID"
	EnvWifiPassword    EnvKey = "WIFI_PASSWORD"
	EnvLEDPin          EnvKey = "LED_PIN"
	EnvLEDActiveHigh   EnvKey = "LED_ACTIVE_HIGH"
	EnvReadCommand     EnvKey = "READ_COMMAND_FROM_CLOUD"
	EnvStatePublishMs  EnvKey = "STATE_PUBLISH_MS"
	EnvCommandPollMs   EnvKey = "COMMAND_POLL_MS"
	EnvFirebaseAPIKey  EnvKey = "FIREBASE_API_KEY"
	EnvFirebaseDBURL   EnvKey = "FIREBASE_DB_URL"
	EnvStatePath       EnvKey = "BOOL_STATE_PATH"
	EnvCommandPath     EnvKey = "BOOL_COMMAND_PATH"
	EnvUseEmailAuth    EnvKey = "FIREBASE_USE_EMAIL_AUTH"
	EnvUserEmail       EnvKey = "FIREBASE_USER_EMAIL"
	EnvUserPassword    EnvKey = "FIREBASE_USER_PASSWORD"
	EnvBackend         EnvKey = "BACKEND"
	EnvGPIOChip        EnvKey = "GPIO_CHIP"
	EnvTickMs          EnvKey = "TICK_MS"
	EnvCallTimeoutMs   EnvKey = "CALL_TIMEOUT_MS"
	EnvHTTPAddr        EnvKey = "HTTP_ADDR"
	EnvLogLevel        EnvKey = "LOG_LEVEL"
	EnvMQTTBroker      EnvKey = "MQTT_BROKER"
	EnvMQTTUsername    EnvKey = "MQTT_USERNAME"
	EnvMQTTPassword    EnvKey = "MQTT_PASSWORD"
	EnvMQTTTopicPrefix EnvKey = "MQTT_TOPIC_PREFIX"
	EnvDynamoTable     EnvKey = "DYNAMODB_TABLE"
	EnvProbe           EnvKey = "CONNECTIVITY_PROBE"
)

// Config is the complete daemon configuration.
type Config struct {
	WifiSSID     string
	WifiPassword string

	LEDPin        int
	GPIOChip      string
	LEDActiveHigh bool

	ReadCommand  bool
	StatePublish time.Duration
	CommandPoll  time.Duration

	Backend Backend

	FirebaseAPIKey string
	FirebaseDBURL  string
	StatePath      string
	CommandPath    string
	UseEmailAuth   bool
	UserEmail      string
	UserPassword   string

	MQTTBroker      string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	DynamoTable string

	Tick              time.Duration
	CallTimeout       time.Duration
	HTTPAddr          string // empty disables the status server
	ConnectivityProbe string // host:port, ProbeAuto, or empty to disable
	LogLevel          slog.Level

	PrintState bool
}

// Load parses args (without the program name) with defaults from getenv.
// A nil getenv uses os.Getenv. -h prints the flag defaults and returns flag.ErrHelp.
func Load(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := envReader{getenv: getenv}

	var (
		cfg                 Config
		activeHigh, readCmd int
		emailAuth           int
		publishMs, pollMs   int
		tickMs, timeoutMs   int
		backend, logLevel   string
	)

	fs := flag.NewFlagSet("led-sync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.WifiSSID, "wifi-ssid", env.str(EnvWifiSSID, ""), "Expected Wi-Fi network (empty = do not check)")
	fs.StringVar(&cfg.WifiPassword, "wifi-password", env.str(EnvWifiPassword, ""), "Wi-Fi password (validated against placeholders only)")
	fs.IntVar(&cfg.LEDPin, "led-pin", env.number(EnvLEDPin, gpio.DefaultPin), "Output line offset for the LED")
	fs.StringVar(&cfg.GPIOChip, "gpio-chip", env.str(EnvGPIOChip, gpio.DefaultChip), "GPIO chip device")
	fs.IntVar(&activeHigh, "led-active-high", env.number(EnvLEDActiveHigh, 1), "1 = LED lit when pin high, 0 = lit when low")
	fs.IntVar(&readCmd, "read-command", env.number(EnvReadCommand, 1), "1 = poll the command path")
	fs.IntVar(&publishMs, "state-publish-ms", env.number(EnvStatePublishMs, 1000), "State publish interval in milliseconds")
	fs.IntVar(&pollMs, "command-poll-ms", env.number(EnvCommandPollMs, 1000), "Command poll interval in milliseconds")
	fs.StringVar(&backend, "backend", env.str(EnvBackend, string(BackendRTDB)), "Cloud store: rtdb, mqtt or dynamodb")
	fs.StringVar(&cfg.FirebaseAPIKey, "firebase-api-key", env.str(EnvFirebaseAPIKey, PlaceholderAPIKey), "Firebase web API key")
	fs.StringVar(&cfg.FirebaseDBURL, "firebase-db-url", env.str(EnvFirebaseDBURL, PlaceholderDBURL), "Realtime Database URL")
	fs.StringVar(&cfg.StatePath, "state-path", env.str(EnvStatePath, "bool"), "Key path the LED state is published to")
	fs.StringVar(&cfg.CommandPath, "command-path", env.str(EnvCommandPath, "bool_cmd"), "Key path commands are read from")
	fs.IntVar(&emailAuth, "firebase-email-auth", env.number(EnvUseEmailAuth, 0), "1 = email/password auth, 0 = anonymous")
	fs.StringVar(&cfg.UserEmail, "firebase-email", env.str(EnvUserEmail, ""), "Firebase user email")
	fs.StringVar(&cfg.UserPassword, "firebase-password", env.str(EnvUserPassword, ""), "Firebase user password")
	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", env.str(EnvMQTTBroker, "tcp://127.0.0.1:1883"), "MQTT broker address")
	fs.StringVar(&cfg.MQTTUsername, "mqtt-username", env.str(EnvMQTTUsername, ""), "MQTT username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", env.str(EnvMQTTPassword, ""), "MQTT password")
	fs.StringVar(&cfg.MQTTTopicPrefix, "mqtt-topic-prefix", env.str(EnvMQTTTopicPrefix, "led-sync"), "MQTT topic prefix for key paths")
	fs.StringVar(&cfg.DynamoTable, "dynamodb-table", env.str(EnvDynamoTable, "led-sync"), "DynamoDB table name")
	fs.IntVar(&tickMs, "tick-ms", env.number(EnvTickMs, 100), "Loop tick in milliseconds")
	fs.IntVar(&timeoutMs, "call-timeout-ms", env.number(EnvCallTimeoutMs, 5000), "Per-call cloud timeout in milliseconds")
	fs.StringVar(&cfg.HTTPAddr, "http", env.str(EnvHTTPAddr, ":8080"), "HTTP status address (empty to disable)")
	fs.StringVar(&cfg.ConnectivityProbe, "connectivity-probe", env.str(EnvProbe, ProbeAuto), `TCP host:port probed for connectivity ("auto" derives from backend, empty disables)`)
	fs.StringVar(&logLevel, "log-level", env.str(EnvLogLevel, "INFO"), "DEBUG, INFO, WARN or ERROR")
	fs.BoolVar(&cfg.PrintState, "print-state", false, "Print cloud state and command and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stderr)
			fs.PrintDefaults()
			return Config{}, err
		}
		return Config{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if len(env.errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(env.errs...))
	}

	var errs []error
	cfg.LEDActiveHigh = flagBool("led-active-high", activeHigh, &errs)
	cfg.ReadCommand = flagBool("read-command", readCmd, &errs)
	cfg.UseEmailAuth = flagBool("firebase-email-auth", emailAuth, &errs)
	cfg.StatePublish = time.Duration(publishMs) * time.Millisecond
	cfg.CommandPoll = time.Duration(pollMs) * time.Millisecond
	cfg.Tick = time.Duration(tickMs) * time.Millisecond
	cfg.CallTimeout = time.Duration(timeoutMs) * time.Millisecond
	cfg.Backend = Backend(strings.ToLower(backend))

	level, err := parseLevel(logLevel)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.LogLevel = level

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return cfg, nil
}

// Validate rejects configurations that must not run: placeholder secrets, missing
// credentials for the selected backend and non-positive intervals.
func (c Config) Validate() error {
	var errs []error
	reject := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.WifiSSID == PlaceholderWifiSSID {
		reject("WIFI_SSID is still the placeholder %q", PlaceholderWifiSSID)
	}
	if c.WifiPassword == PlaceholderWifiPassword {
		reject("WIFI_PASSWORD is still the placeholder")
	}

	switch c.Backend {
	case BackendRTDB:
		switch c.FirebaseAPIKey {
		case "":
			reject("FIREBASE_API_KEY is required")
		case PlaceholderAPIKey:
			reject("FIREBASE_API_KEY is still the placeholder %q", PlaceholderAPIKey)
		}
		switch c.FirebaseDBURL {
		case "":
			reject("FIREBASE_DB_URL is required")
		case PlaceholderDBURL:
			reject("FIREBASE_DB_URL is still the placeholder %q", PlaceholderDBURL)
		default:
			if u, err := url.Parse(c.FirebaseDBURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
				reject("FIREBASE_DB_URL %q is not an http(s) URL", c.FirebaseDBURL)
			}
		}
		if c.UseEmailAuth {
			if c.UserEmail == "" {
				reject("FIREBASE_USER_EMAIL is required with email auth")
			}
			if c.UserPassword == "" {
				reject("FIREBASE_USER_PASSWORD is required with email auth")
			}
		}
	case BackendMQTT:
		if c.MQTTBroker == "" {
			reject("MQTT_BROKER is required for the mqtt backend")
		}
	case BackendDynamo:
		if c.DynamoTable == "" {
			reject("DYNAMODB_TABLE is required for the dynamodb backend")
		}
	default:
		reject("unknown backend %q", c.Backend)
	}

	if c.StatePublish <= 0 {
		reject("STATE_PUBLISH_MS must be positive")
	}
	if c.ReadCommand && c.CommandPoll <= 0 {
		reject("COMMAND_POLL_MS must be positive")
	}
	if c.Tick <= 0 {
		reject("TICK_MS must be positive")
	}
	if c.CallTimeout < 0 {
		reject("CALL_TIMEOUT_MS must not be negative")
	}
	if strings.Trim(c.StatePath, "/") == "" {
		reject("BOOL_STATE_PATH is required")
	}
	if c.ReadCommand && strings.Trim(c.CommandPath, "/") == "" {
		reject("BOOL_COMMAND_PATH is required")
	}
	if c.LEDPin < 0 {
		reject("LED_PIN must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// ProbeTarget resolves ConnectivityProbe to a host:port, or "" when probing is disabled.
func (c Config) ProbeTarget() string {
	if c.ConnectivityProbe != ProbeAuto {
		return c.ConnectivityProbe
	}
	switch c.Backend {
	case BackendRTDB:
		u, err := url.Parse(c.FirebaseDBURL)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		port := u.Port()
		if port == "" {
			port = "443"
			if u.Scheme == "http" {
				port = "80"
			}
		}
		return u.Hostname() + ":" + port
	default:
		// The MQTT client tracks its own connection; DynamoDB endpoints vary by region.
		return ""
	}
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(key EnvKey, def string) string {
	if v := e.getenv(string(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) number(key EnvKey, def int) int {
	v := strings.TrimSpace(e.getenv(string(key)))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s=%q is not an integer", key, v))
		return def
	}
	return n
}

func flagBool(name string, v int, errs *[]error) bool {
	switch v {
	case 0:
		return false
	case 1:
		return true
	}
	*errs = append(*errs, fmt.Errorf("%s must be 0 or 1, got %d", name, v))
	return false
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
