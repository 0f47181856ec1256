package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure returned from Load.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	AuthFirebase = "firebase"
	AuthStatic   = "static"
)

type Config struct {
	Server struct {
		Port                int      `yaml:"port"`
		ReadTimeoutSeconds  int      `yaml:"readTimeoutSeconds"`
		WriteTimeoutSeconds int      `yaml:"writeTimeoutSeconds"`
		AllowedOrigins      []string `yaml:"allowedOrigins"`
		RateLimitCapacity   int      `yaml:"rateLimitCapacity"`
		RateLimitRefill     int      `yaml:"rateLimitRefill"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		Path     string `yaml:"path"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Engine struct {
		ExecPath       string   `yaml:"execPath"`
		Headless       *bool    `yaml:"headless"`
		TimeoutSeconds int      `yaml:"timeoutSeconds"`
		NetworkIdleMS  int      `yaml:"networkIdleMs"`
		RuleArchive    string   `yaml:"ruleArchive"`
		Policies       []string `yaml:"policies"`
	} `yaml:"engine"`

	Auth struct {
		Mode              string            `yaml:"mode"`
		FirebaseProjectID string            `yaml:"firebaseProjectId"`
		StaticTokens      map[string]string `yaml:"staticTokens"` // token -> user id
	} `yaml:"auth"`

	Credits struct {
		WebpageScanCost int64 `yaml:"webpageScanCost"`
	} `yaml:"credits"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads the YAML file at path, applies env overrides and defaults, and
// validates the result. A missing file is not an error: defaults plus env are used.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default filled in, backed by a
// local SQLite file and static auth.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("IACC_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("IACC_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("IACC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("IACC_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("IACC_AUTH_MODE"); v != "" {
		c.Auth.Mode = v
	}
	if v := os.Getenv("FIREBASE_PROJECT_ID"); v != "" {
		c.Auth.FirebaseProjectID = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	// scans render a full page, so the write deadline must outlive the engine timeout
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 120
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.RateLimitCapacity == 0 {
		c.Server.RateLimitCapacity = 20
	}
	if c.Server.RateLimitRefill == 0 {
		c.Server.RateLimitRefill = 1
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "iaccessible.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case DriverMySQL:
			c.Database.Port = 3306
		case DriverPostgres:
			c.Database.Port = 5432
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "iaccessible"
	}

	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "scan-reports"
	}

	if c.Engine.Headless == nil {
		headless := true
		c.Engine.Headless = &headless
	}
	if c.Engine.TimeoutSeconds == 0 {
		c.Engine.TimeoutSeconds = 60
	}
	if c.Engine.NetworkIdleMS == 0 {
		c.Engine.NetworkIdleMS = 500
	}
	if c.Engine.RuleArchive == "" {
		c.Engine.RuleArchive = "latest"
	}
	if len(c.Engine.Policies) == 0 {
		c.Engine.Policies = []string{"WCAG_2_1"}
	}

	c.Auth.Mode = strings.ToLower(strings.TrimSpace(c.Auth.Mode))
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthStatic
	}

	if c.Credits.WebpageScanCost == 0 {
		c.Credits.WebpageScanCost = 10
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	switch c.Auth.Mode {
	case AuthFirebase:
		if c.Auth.FirebaseProjectID == "" {
			return fmt.Errorf("%w: auth.firebaseProjectId is required in firebase mode", ErrInvalidConfig)
		}
	case AuthStatic:
	default:
		return fmt.Errorf("%w: unknown auth mode %q", ErrInvalidConfig, c.Auth.Mode)
	}
	if c.Credits.WebpageScanCost < 0 {
		return fmt.Errorf("%w: credits.webpageScanCost must be positive", ErrInvalidConfig)
	}
	if c.Engine.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: engine.timeoutSeconds must be positive", ErrInvalidConfig)
	}
	if c.Minio.Enabled && c.Minio.Endpoint == "" {
		return fmt.Errorf("%w: minio.endpoint is required when minio is enabled", ErrInvalidConfig)
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
