/**
 * @description
 * This package handles the configuration management for the ledger-service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional .env file), providing a centralized way to manage
 * application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	AccessTokenSecret         string `mapstructure:"ACCESS_TOKEN_SECRET"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	TransferRateLimitPerMin   int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	LedgerRetryQueueSize      int    `mapstructure:"LEDGER_RETRY_QUEUE_SIZE"`
	LedgerRetryMaxAttempts    int    `mapstructure:"LEDGER_RETRY_MAX_ATTEMPTS"`
	LedgerRetryBaseDelayMilli int    `mapstructure:"LEDGER_RETRY_BASE_DELAY_MS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "pocketbank:rate_limit")
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 0) // 0 disables limiting
	viper.SetDefault("LEDGER_RETRY_QUEUE_SIZE", 256)
	viper.SetDefault("LEDGER_RETRY_MAX_ATTEMPTS", 5)
	viper.SetDefault("LEDGER_RETRY_BASE_DELAY_MS", 500)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("ACCESS_TOKEN_SECRET")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("LEDGER_RETRY_QUEUE_SIZE")
	_ = viper.BindEnv("LEDGER_RETRY_MAX_ATTEMPTS")
	_ = viper.BindEnv("LEDGER_RETRY_BASE_DELAY_MS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "pocketbank:rate_limit"
	}

	if config.TransferRateLimitPerMin < 0 {
		log.Printf("level=warn component=config msg=\"negative transfer rate limit configured; disabling\" limit=%d", config.TransferRateLimitPerMin)
		config.TransferRateLimitPerMin = 0
	}
	if config.LedgerRetryQueueSize <= 0 {
		config.LedgerRetryQueueSize = 256
	}
	if config.LedgerRetryMaxAttempts <= 0 {
		config.LedgerRetryMaxAttempts = 5
	}
	if config.LedgerRetryBaseDelayMilli <= 0 {
		config.LedgerRetryBaseDelayMilli = 500
	}

	return
}
