package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Redis   RedisConfig
	Log     LogConfig
	Auth    AuthConfig
	Pricing PricingConfig
	Product ProductConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
}

type StorageConfig struct {
	LicenseFile string `mapstructure:"licenseFile"`
	APIKeyFile  string `mapstructure:"apiKeyFile"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwtSecret"`
	TokenTTL      time.Duration `mapstructure:"tokenTTL"`
	AdminUser     string        `mapstructure:"adminUser"`
	AdminPassword string        `mapstructure:"adminPassword"`
}

// PricingConfig holds the per-plan price in cents that issuance adds to
// cumulative revenue when a payment event does not carry its own amount.
type PricingConfig struct {
	MonthlyCents  int64 `mapstructure:"monthlyCents"`
	AnnualCents   int64 `mapstructure:"annualCents"`
	LifetimeCents int64 `mapstructure:"lifetimeCents"`
}

// ProductConfig names the product automated issuance binds licenses to when
// the payment event does not carry a product of its own.
type ProductConfig struct {
	Name string `mapstructure:"name"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.readTimeout", 5*time.Second)
	viper.SetDefault("server.writeTimeout", 10*time.Second)
	viper.SetDefault("server.idleTimeout", 120*time.Second)
	viper.SetDefault("server.shutdownPeriod", 15*time.Second)

	viper.SetDefault("storage.licenseFile", "./data/licenses.json")
	viper.SetDefault("storage.apiKeyFile", "./data/apikeys.json")

	viper.SetDefault("redis.db", "0")

	viper.SetDefault("log.level", "info")

	viper.SetDefault("auth.tokenTTL", 12*time.Hour)
	viper.SetDefault("auth.adminUser", "admin")

	viper.SetDefault("pricing.monthlyCents", 500)
	viper.SetDefault("pricing.annualCents", 4800)
	viper.SetDefault("pricing.lifetimeCents", 9900)

	viper.SetDefault("product.name", "LicenseHub Desktop")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AllowEmptyEnv(true)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
