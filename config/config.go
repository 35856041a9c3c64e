package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	defaultPath               = "."
	defaultConfigName         = "config"
	defaultMaxRequestBodySize = "100KB"

	// configFileEnv points at an explicit YAML file and bypasses the search paths.
	configFileEnv = "CONFIG_FILE"

	// dotenvFileEnv overrides the .env location.
	dotenvFileEnv     = "DOTENV_FILE"
	defaultDotenvFile = ".env"
	// dotenvDelim never occurs in variable names, so keys stay flat.
	dotenvDelim = "\x00"
)

// Supported values for DB.Driver.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// envAliases maps flat environment variables onto nested config keys.
var envAliases = map[string]string{
	"PORT": "http.port",
}

type Config struct {
	App struct {
		Name  string `json:"name" yaml:"name"`
		Debug bool   `json:"debug" yaml:"debug"`
		Log   Log    `json:"log" yaml:"log"`
	} `json:"app" yaml:"app"`

	HTTP struct {
		Port               int    `json:"port" yaml:"port"`
		MaxRequestBodySize string `json:"maxRequestBodySize" yaml:"maxRequestBodySize"`
		Timeouts           struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	DB DBConfig `json:"db" yaml:"db"`

	Auth AuthConfig `json:"auth" yaml:"auth"`
}

// DBConfig describes the relational store holding the users table.
type DBConfig struct {
	// Driver selects the dialect: mysql, postgres or sqlite.
	Driver   string `json:"driver" yaml:"driver"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	// Name is the database name, or the file/DSN for sqlite.
	Name    string `json:"name" yaml:"name"`
	SSLMode string `json:"sslMode" yaml:"sslMode"`

	// Params are appended to the DSN as driver options.
	Params map[string]string `json:"params" yaml:"params"`

	Pool PoolConfig `json:"pool" yaml:"pool"`

	// Replicas serve the read-only listing query when present.
	Replicas []ReplicaConfig `json:"replicas" yaml:"replicas"`

	// Migrate runs the embedded schema migrations on start.
	Migrate bool `json:"migrate" yaml:"migrate"`
}

type PoolConfig struct {
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `json:"connMaxIdleTime" yaml:"connMaxIdleTime"`
}

type ReplicaConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

// AuthConfig defines authentication-related configuration
type AuthConfig struct {
	BcryptCost int    `json:"bcryptCost" yaml:"bcryptCost"`
	Realm      string `json:"realm" yaml:"realm"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// Default returns the configuration used when neither a file nor the environment overrides a value.
func Default() *Config {
	cfg := new(Config)

	cfg.App.Name = "accounts"
	cfg.App.Log.Level = "info"

	cfg.HTTP.Port = 3000
	cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	cfg.HTTP.Timeouts.ReadTimeout = 10 * time.Second
	cfg.HTTP.Timeouts.ReadHeaderTimeout = 5 * time.Second
	cfg.HTTP.Timeouts.WriteTimeout = 10 * time.Second
	cfg.HTTP.Timeouts.IdleTimeout = 60 * time.Second

	cfg.DB = DBConfig{
		Driver:   DriverMySQL,
		Host:     "localhost",
		Port:     3306,
		User:     "admin",
		Password: "azerty",
		Name:     "bdusers",
		SSLMode:  "disable",
		Pool: PoolConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Migrate: true,
	}

	cfg.Auth = AuthConfig{
		BcryptCost: 10,
		Realm:      "accounts",
	}

	return cfg
}

// LoadWithEnv overlays an optional .yaml file and the environment onto defaults through koanf.
func LoadWithEnv[T any](defaults *T, currEnv string, configPath ...string) (*T, error) {
	cfg := defaults
	if cfg == nil {
		cfg = new(T)
	}
	koanfInstance := koanf.New(".")

	configFile, err := findConfigFile(currEnv, configPath...)
	if err != nil {
		return nil, err
	}

	if configFile != "" {
		if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read %s config failed", currEnv)
		}
	}

	existingConfigMap := koanfInstance.Raw()
	roots := topLevelKeys[T](existingConfigMap)

	envKey := func(k, v string) (string, any) {
		if alias, ok := envAliases[k]; ok {
			return alias, v
		}

		// Convert ENV_VAR_NAME to path and align each segment with existing YAML keys.
		// Example: DB_POOL_MAXOPENCONNS -> db.pool.maxOpenConns
		key := canonicalizeEnvKey(k, existingConfigMap)
		root, _, nested := strings.Cut(key, ".")
		if !nested {
			return "", nil
		}
		if _, known := roots[normalizeToken(root)]; !known {
			return "", nil
		}

		return key, v
	}

	// .env sits between the YAML file and the real environment.
	if err := loadDotenv(koanfInstance, envKey); err != nil {
		return nil, err
	}

	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv(Default(), defaultConfigName, "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.HTTP.MaxRequestBodySize) == "" {
		cfg.HTTP.MaxRequestBodySize = defaultMaxRequestBodySize
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.Errorf("http.port out of range: %d", c.HTTP.Port)
	}

	switch c.DB.Driver {
	case DriverMySQL, DriverPostgres:
		if c.DB.Host == "" || c.DB.Name == "" {
			return errors.Errorf("db.host and db.name are required for driver %s", c.DB.Driver)
		}
	case DriverSQLite:
		if c.DB.Name == "" {
			return errors.New("db.name is required for driver sqlite")
		}
	default:
		return errors.Errorf("unsupported db.driver: %q", c.DB.Driver)
	}

	// bcrypt rejects costs above 31.
	if c.Auth.BcryptCost < 0 || c.Auth.BcryptCost > 31 {
		return errors.Errorf("auth.bcryptCost out of range: %d", c.Auth.BcryptCost)
	}

	return nil
}

// loadDotenv applies KEY=VALUE pairs from an optional .env file in the working directory,
// or from the file named by DOTENV_FILE, with the same key mapping as the environment.
func loadDotenv(k *koanf.Koanf, envKey func(k, v string) (string, any)) error {
	path := os.Getenv(dotenvFileEnv)
	if path == "" {
		path = defaultDotenvFile
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}

	dotenvValues := koanf.New(dotenvDelim)
	if err := dotenvValues.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return errors.Wrapf(err, "read dotenv file %s failed", path)
	}

	for name, raw := range dotenvValues.All() {
		value, ok := raw.(string)
		if !ok {
			continue
		}
		key, v := envKey(name, value)
		if key == "" {
			continue
		}
		if err := k.Set(key, v); err != nil {
			return errors.Wrapf(err, "apply dotenv key %s", name)
		}
	}

	return nil
}

// findConfigFile returns the first <currEnv>.yaml found, or the file named by CONFIG_FILE.
// A missing file is not an error: defaults and the environment still apply.
func findConfigFile(currEnv string, configPath ...string) (string, error) {
	if explicit := os.Getenv(configFileEnv); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Wrapf(err, "config file %s", explicit)
		}

		return explicit, nil
	}

	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			searchPaths = append(searchPaths, filepath.Join(pwd, path))
		}
	}

	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", nil
}

// topLevelKeys collects the normalized root keys env overrides may target.
func topLevelKeys[T any](existing map[string]any) map[string]struct{} {
	roots := make(map[string]struct{}, len(existing))
	for key := range existing {
		roots[normalizeToken(key)] = struct{}{}
	}

	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Struct {
		for i := range t.NumField() {
			roots[normalizeToken(t.Field(i).Name)] = struct{}{}
		}
	}

	return roots
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}

// Addr returns host:port for the configured database server.
func (c DBConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
