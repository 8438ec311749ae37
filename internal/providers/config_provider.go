package providers

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"usd/internal/structures"

	"github.com/spf13/viper"
)

const AppName = "UsageSyncDaemon"

// Version is overridden at build time via -ldflags.
var Version = "dev"

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("webServer.host", "127.0.0.1")
	v.SetDefault("webServer.port", 8091)
	v.SetDefault("storage.queueFile", "samples.db")
	v.SetDefault("storage.settingsFile", "settings.json")
	v.SetDefault("storage.compress", true)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.mode", 0644)
	v.SetDefault("collector.interval", 15*time.Minute)
	v.SetDefault("collector.defaultLookback", 15*time.Minute)
	v.SetDefault("collector.timeout", 30*time.Second)
	v.SetDefault("uploader.interval", 60*time.Minute)
	v.SetDefault("uploader.batchLimit", 50)
	v.SetDefault("uploader.timeout", 30*time.Second)
	v.SetDefault("uploader.ingestPath", "/api/ingest")
	v.SetDefault("uploader.authHeader", "X-API-Key")
	v.SetDefault("uploader.requiresNetwork", true)
	v.SetDefault("scheduler.retryInitialInterval", 30*time.Second)
	v.SetDefault("scheduler.retryMaxInterval", 10*time.Minute)
	v.SetDefault("scheduler.networkCheckInterval", 5*time.Second)
	v.SetDefault("settings.displayName", "User")
	v.SetDefault("cache.ttl", 2*time.Second)
}

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	v := viper.New()
	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")
	setConfigDefaults(v)

	v.BindEnv("logger.level", "USD_LOG_LEVEL")
	v.BindEnv("storage.dir", "USD_STORAGE_DIR")
	v.BindEnv("collector.interval", "USD_COLLECTOR_INTERVAL")
	v.BindEnv("uploader.interval", "USD_UPLOADER_INTERVAL")
	v.BindEnv("settings.endpointUrl", "USD_ENDPOINT_URL")
	v.BindEnv("settings.apiKey", "USD_API_KEY")

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = v.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = AppName
	conf.Version = Version
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
