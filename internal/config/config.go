package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Import   *importConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"catalog"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"CATALOG_IMPORTER_ADDRESS" default:":3443"`
	BaseUrl         string `envconfig:"CATALOG_IMPORTER_BASE_URL" default:"http://localhost:3443"`
	LogLevel        string `envconfig:"CATALOG_IMPORTER_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"CATALOG_IMPORTER_MIGRATIONS_FOLDER" default:""`
}

type importConfig struct {
	// BatchSize bounds the number of rows one advance call may process.
	// It is the knob that keeps a single invocation's wall-clock cost
	// small enough to survive the driver's request timeout.
	BatchSize int `envconfig:"CATALOG_IMPORTER_BATCH_SIZE" default:"50"`
	// DefaultReleaseType is assigned when a row carries no recognizable
	// release type. The host dashboard historically defaulted to a
	// single-track release instead of rejecting the row.
	DefaultReleaseType string `envconfig:"CATALOG_IMPORTER_DEFAULT_RELEASE_TYPE" default:"single"`
	// MaxSampleErrors caps the sample error list returned by the stats
	// endpoint.
	MaxSampleErrors int `envconfig:"CATALOG_IMPORTER_MAX_SAMPLE_ERRORS" default:"5"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config populated with defaults only, ignoring the
// environment. Used by tests.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{Type: "sqlite", Name: ":memory:"},
		Service:  &svcConfig{Address: "localhost:0", LogLevel: "debug"},
		Import: &importConfig{
			BatchSize:          50,
			DefaultReleaseType: "single",
			MaxSampleErrors:    5,
		},
	}
}
