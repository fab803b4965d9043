package sdk_configuration

import (
	"bytes"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerPort     = "8080"
	DefaultDocumentDBURI  = "mongodb://localhost:27017"
	DefaultDatabaseName   = "endor"
	DefaultConnectTimeout = 10 * time.Second
	DefaultLogType        = "JSON"
	DefaultLogLevel       = "INFO"

	documentDBEnvPrefix = "DOCUMENT_DB_"
	// variables of the live test suites share the prefix but configure no server
	documentDBTestEnvPrefix = "DOCUMENT_DB_TEST_"
)

// DocumentDBConfig holds every option recognized by the database handle.
type DocumentDBConfig struct {
	URI            string        `yaml:"uri"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Database       string        `yaml:"database"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	AuthSource     string        `yaml:"authSource"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	// FindLimit caps Find results when the caller sets no limit. Zero means no cap.
	FindLimit int64 `yaml:"findLimit"`
}

type ServerConfig struct {
	ServerPort  string           `yaml:"port"`
	DocumentDB  DocumentDBConfig `yaml:"documentDB"`
	LogType     string           `yaml:"logType"`
	LogLevel    string           `yaml:"logLevel"`
	SchemaDir   string           `yaml:"schemaDir"`
	SchemaWatch bool             `yaml:"schemaWatch"`
}

// environment keys, DOCUMENT_DB_* keys not listed here are rejected
var documentDBEnvKeys = map[string]string{
	"DOCUMENT_DB_URI":             "uri",
	"DOCUMENT_DB_HOST":            "host",
	"DOCUMENT_DB_PORT":            "port",
	"DOCUMENT_DB_NAME":            "database",
	"DOCUMENT_DB_USERNAME":        "username",
	"DOCUMENT_DB_PASSWORD":        "password",
	"DOCUMENT_DB_AUTH_SOURCE":     "authSource",
	"DOCUMENT_DB_CONNECT_TIMEOUT": "connectTimeout",
	"DOCUMENT_DB_FIND_LIMIT":      "findLimit",
}

func Defaults() *ServerConfig {
	return &ServerConfig{
		ServerPort: DefaultServerPort,
		DocumentDB: DocumentDBConfig{
			Database:       DefaultDatabaseName,
			ConnectTimeout: DefaultConnectTimeout,
		},
		LogType:  DefaultLogType,
		LogLevel: DefaultLogLevel,
	}
}

// LoadConfiguration reads the optional .env file and then the process environment.
func LoadConfiguration() (*ServerConfig, error) {
	err := godotenv.Load(".env")
	if err != nil {
		log.Printf("Error loading .env file: %s. Ignore this in production.", err)
	}
	return ParseEnvironment(os.Environ())
}

// ParseEnvironment builds a configuration from KEY=VALUE pairs.
func ParseEnvironment(environ []string) (*ServerConfig, error) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[key] = value
	}

	config := Defaults()
	config.ServerPort = getEnv(env, "PORT", config.ServerPort)
	config.LogType = strings.ToUpper(getEnv(env, "LOG_TYPE", config.LogType))
	config.LogLevel = strings.ToUpper(getEnv(env, "LOG_LEVEL", config.LogLevel))
	config.SchemaDir = getEnv(env, "SCHEMA_DIR", "")
	config.SchemaWatch = getEnvAsBool(env, "SCHEMA_WATCH", false)

	options := map[string]string{}
	var unknown []string
	for key, value := range env {
		if !strings.HasPrefix(key, documentDBEnvPrefix) || strings.HasPrefix(key, documentDBTestEnvPrefix) {
			continue
		}
		option, ok := documentDBEnvKeys[key]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if value != "" {
			options[option] = value
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unrecognized configuration variables: %s", strings.Join(unknown, ", "))
	}
	if err := config.DocumentDB.apply(options); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FromOptions builds a database configuration from explicit options.
// Recognized keys: uri, host, port, database, username, password, authSource,
// connectTimeout, findLimit.
func FromOptions(options map[string]string) (DocumentDBConfig, error) {
	config := Defaults().DocumentDB
	if err := config.apply(options); err != nil {
		return DocumentDBConfig{}, err
	}
	if err := config.Validate(); err != nil {
		return DocumentDBConfig{}, err
	}
	return config, nil
}

// LoadFile reads a YAML configuration file on top of the defaults. Unknown keys are rejected.
func LoadFile(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}
	config := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}
	config.LogType = strings.ToUpper(config.LogType)
	config.LogLevel = strings.ToUpper(config.LogLevel)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ServerConfig) Validate() error {
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server port %q", c.ServerPort)
	}
	switch c.LogType {
	case "JSON", "STRING":
	default:
		return fmt.Errorf("invalid log type %q (expected JSON or STRING)", c.LogType)
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return c.DocumentDB.Validate()
}

func (c *DocumentDBConfig) apply(options map[string]string) error {
	var unknown []string
	for key, value := range options {
		var err error
		switch key {
		case "uri":
			c.URI = value
		case "host":
			c.Host = value
		case "port":
			c.Port, err = strconv.Atoi(value)
		case "database":
			c.Database = value
		case "username":
			c.Username = value
		case "password":
			c.Password = value
		case "authSource":
			c.AuthSource = value
		case "connectTimeout":
			c.ConnectTimeout, err = time.ParseDuration(value)
		case "findLimit":
			c.FindLimit, err = strconv.ParseInt(value, 10, 64)
		default:
			unknown = append(unknown, key)
		}
		if err != nil {
			return fmt.Errorf("invalid value for option %s: %w", key, err)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unrecognized configuration options: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func (c DocumentDBConfig) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if strings.ContainsAny(c.Database, "/\\. \"$") {
		return fmt.Errorf("invalid database name %q", c.Database)
	}
	if c.URI == "" && c.Host != "" && (c.Port < 0 || c.Port > 65535) {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if (c.Username == "") != (c.Password == "") {
		return fmt.Errorf("username and password must be provided together")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.FindLimit < 0 {
		return fmt.Errorf("find limit must not be negative")
	}
	return nil
}

// ConnectionURI returns the URI when set, otherwise one built from host and port.
func (c DocumentDBConfig) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}
	if c.Host == "" {
		return DefaultDocumentDBURI
	}
	host := c.Host
	if c.Port > 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	return "mongodb://" + host
}

// RedactedURI is the connection URI with any embedded password masked, safe for logs.
func (c DocumentDBConfig) RedactedURI() string {
	raw := c.ConnectionURI()
	u, err := url.Parse(raw)
	if err != nil {
		return "<malformed uri>"
	}
	return u.Redacted()
}

// Helpers
func getEnv(env map[string]string, key, defaultVal string) string {
	if value, exists := env[key]; exists && value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsBool(env map[string]string, key string, defaultVal bool) bool {
	if value, exists := env[key]; exists {
		if value == "true" || value == "1" {
			return true
		}
		return false
	}
	return defaultVal
}
