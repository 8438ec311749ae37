package structures

import "time"

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type StorageConfig struct {
	Dir          string `yaml:"dir" validate:"required|unixPath"`
	QueueFile    string `yaml:"queueFile" validate:"required"`
	SettingsFile string `yaml:"settingsFile" validate:"required"`
	Compress     bool   `yaml:"compress"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

type CollectorConfig struct {
	Interval        time.Duration `yaml:"interval" validate:"required|min:1"`
	DefaultLookback time.Duration `yaml:"defaultLookback" validate:"required|min:1"`
	Timeout         time.Duration `yaml:"timeout" validate:"required|min:1"`
	MaxWindow       time.Duration `yaml:"maxWindow"`
}

type UploaderConfig struct {
	Interval        time.Duration `yaml:"interval" validate:"required|min:1"`
	BatchLimit      int           `yaml:"batchLimit" validate:"required|min:1"`
	Timeout         time.Duration `yaml:"timeout" validate:"required|min:1"`
	IngestPath      string        `yaml:"ingestPath" validate:"required"`
	AuthHeader      string        `yaml:"authHeader" validate:"required"`
	RequiresNetwork bool          `yaml:"requiresNetwork"`
}

type SchedulerConfig struct {
	RetryInitialInterval time.Duration `yaml:"retryInitialInterval"`
	RetryMaxInterval     time.Duration `yaml:"retryMaxInterval"`
	NetworkCheckInterval time.Duration `yaml:"networkCheckInterval"`
}

type DeviceConfig struct {
	Model string `yaml:"model"`
}

// SettingsDefaults seeds the settings store on first start and on reset.
type SettingsDefaults struct {
	EndpointURL       string `yaml:"endpointUrl"`
	APIKey            string `yaml:"apiKey"`
	DisplayName       string `yaml:"displayName"`
	CollectionEnabled bool   `yaml:"collectionEnabled"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName   string
	Version   string
	Debug     bool
	Path      string
	WebServer Server           `yaml:"webServer"`
	Storage   StorageConfig    `yaml:"storage"`
	Logger    LoggerConfig     `yaml:"logger"`
	Collector CollectorConfig  `yaml:"collector"`
	Uploader  UploaderConfig   `yaml:"uploader"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Device    DeviceConfig     `yaml:"device"`
	Settings  SettingsDefaults `yaml:"settings"`
	Cache     CacheConfig      `yaml:"cache"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}
