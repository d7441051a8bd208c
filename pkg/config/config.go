package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind identifies the family of store an endpoint points at.
type Kind string

const (
	KindKeyValue   Kind = "keyvalue"
	KindRelational Kind = "relational"
)

// Relational drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

const (
	// DefaultRelationalTimeout bounds relational connects when no timeout is configured.
	DefaultRelationalTimeout = 2 * time.Second

	// EnvConfigPath overrides the configuration file location.
	EnvConfigPath = "REDB_BROKER_CONFIG"

	defaultConfigPath = "broker.yaml"
	defaultListen     = ":8080"
)

// Database is the configured database selector. Key-value endpoints use a
// numeric index, relational endpoints a schema name. YAML scalars of any type
// decode into it verbatim.
type Database string

// UnmarshalYAML accepts both `db: 1` and `db: "app"`.
func (d *Database) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("db must be a scalar, got %s at line %d", kindName(value.Kind), value.Line)
	}
	*d = Database(value.Value)
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	default:
		return "node"
	}
}

// Endpoint is the static configuration of one logical connection name.
// It is never mutated after being applied.
type Endpoint struct {
	Type     string   `yaml:"type"`
	Driver   string   `yaml:"driver,omitempty"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Database Database `yaml:"db,omitempty"`
	User     string   `yaml:"user,omitempty"`
	Password string   `yaml:"password,omitempty"`
	// Timeout is the connect timeout in seconds; zero means the default.
	Timeout float64 `yaml:"timeout,omitempty"`
}

// Kind normalizes the configured type. Store names are accepted as aliases.
func (e Endpoint) Kind() (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(e.Type)) {
	case "keyvalue", "kv", "redis":
		return KindKeyValue, true
	case "relational", "sql", "mysql", "postgres", "postgresql":
		return KindRelational, true
	default:
		return "", false
	}
}

// DriverName returns the relational driver, defaulting to MySQL.
func (e Endpoint) DriverName() string {
	driver := strings.ToLower(strings.TrimSpace(e.Driver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(e.Type))
	}
	switch driver {
	case "postgres", "postgresql", "pgx":
		return DriverPostgres
	default:
		return DriverMySQL
	}
}

// Validate checks the fields required to dial the endpoint.
func (e Endpoint) Validate() error {
	if _, ok := e.Kind(); !ok {
		return fmt.Errorf("unknown endpoint type %q", e.Type)
	}
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("port %d out of range", e.Port)
	}
	return nil
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// KeyValueDB parses the database index of a key-value endpoint.
func (e Endpoint) KeyValueDB() (int, error) {
	raw := strings.TrimSpace(string(e.Database))
	if raw == "" {
		return 0, nil
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid key-value database index %q", raw)
	}
	return index, nil
}

// DatabaseName returns the configured database, "0" when unset.
func (e Endpoint) DatabaseName() string {
	if name := strings.TrimSpace(string(e.Database)); name != "" {
		return name
	}
	return "0"
}

// ConnectTimeout returns the dial timeout. Key-value endpoints fall back to
// the client default (zero), relational endpoints to DefaultRelationalTimeout.
func (e Endpoint) ConnectTimeout() time.Duration {
	if e.Timeout > 0 {
		return time.Duration(e.Timeout * float64(time.Second))
	}
	if kind, _ := e.Kind(); kind == KindRelational {
		return DefaultRelationalTimeout
	}
	return 0
}

// Table maps logical names to endpoints.
type Table map[string]Endpoint

// Clone returns a shallow copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for name, ep := range t {
		out[name] = ep
	}
	return out
}

// LogConfig configures the broker logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives a JSON copy of every entry.
	File string `yaml:"file,omitempty"`
}

// File is the on-disk broker configuration.
type File struct {
	Log         LogConfig `yaml:"log"`
	Debug       bool      `yaml:"debug"`
	Listen      string    `yaml:"listen"`
	Connections Table     `yaml:"connections"`
}

// DefaultPath returns the configuration path from the environment, or
// broker.yaml in the working directory.
func DefaultPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return defaultConfigPath
}

// Load reads and parses a configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults. Endpoints are not
// validated here; malformed entries fail when they are first dialed.
func Parse(data []byte) (*File, error) {
	file := &File{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if file.Connections == nil {
		file.Connections = Table{}
	}
	if file.Listen == "" {
		file.Listen = defaultListen
	}
	if file.Log.Level == "" {
		file.Log.Level = "info"
	}
	if file.Debug {
		file.Log.Level = "debug"
	}
	return file, nil
}
