package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Alijeyrad/tabib_backend/pkg/constants"
	"github.com/spf13/viper"
)

func ReadConfig(configPath string) (*Config, error) {
	viper.SetConfigName(constants.ConfigName)
	viper.SetConfigType(constants.ConfigFormat)
	viper.AddConfigPath(configPath)

	// e.g. TABIB_DATABASE_HOST overrides database.host
	viper.SetEnvPrefix(constants.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %v", err)
		}
		// Containers may be configured from the environment alone.
		if os.Getenv(constants.EnvPrefix+"_SERVER_PORT") == "" {
			return nil, fmt.Errorf("config file not found in %q and %s_SERVER_PORT is unset", configPath, constants.EnvPrefix)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.migrations.safe_mode", true)
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.timeout_seconds", 30)
	viper.SetDefault("nats.subject_prefix", constants.AppName)
	viper.SetDefault("clinic.archive_limit", 50)
	viper.SetDefault("clinic.phone_region", "IR")
	viper.SetDefault("ai.timeout_seconds", 60)
	viper.SetDefault("authorization.casbin_model_path", "config/casbin_model.conf")
}
