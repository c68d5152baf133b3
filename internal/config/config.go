package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/spf13/viper"

	"github.com/shopaura/storefront/internal/log"
)

type Application struct {
	Env  string `mapstructure:"env"  json:"env"`
	Name string `mapstructure:"name" json:"name"`
}

type Api struct {
	BaseUrl        string `mapstructure:"base_url"        json:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	SessionToken   string `mapstructure:"session_token"   json:"-"`
}

type Checkout struct {
	ShippingCharge        int64  `mapstructure:"shipping_charge"         json:"shipping_charge"`
	FreeShippingThreshold int64  `mapstructure:"free_shipping_threshold" json:"free_shipping_threshold"`
	Currency              string `mapstructure:"currency"                json:"currency"`
}

type Gateway struct {
	KeyId      string `mapstructure:"key_id"      json:"key_id"`
	Name       string `mapstructure:"name"        json:"name"`
	ThemeColor string `mapstructure:"theme_color" json:"theme_color"`
}

type Log struct {
	Filepath string `mapstructure:"filepath" json:"filepath"`
}

type Otel struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host"    json:"host"`
	Port    int    `mapstructure:"port"    json:"port"`
}

type Config struct {
	Application `mapstructure:"application" json:"application"`
	Api         `mapstructure:"api"         json:"api"`
	Checkout    `mapstructure:"checkout"    json:"checkout"`
	Gateway     `mapstructure:"gateway"     json:"gateway"`
	Log         `mapstructure:"log"         json:"log"`
	Otel        `mapstructure:"otel"        json:"otel"`
}

var (
	once   sync.Once
	config *Config
)

func InitConfig(c context.Context, filename string) *Config {
	cfg := Config{}
	once.Do(func() {
		logger := zerolog.Ctx(c).
			With().
			Str(log.KeyTag, "main InitConfig").
			Str(log.KeyProcess, "init config").
			Str("filename", filename).
			Logger()

		viper.SetConfigName(filename)
		viper.AddConfigPath("./env")
		viper.SetConfigType("yaml")
		viper.SetEnvPrefix("STOREFRONT")
		viper.AutomaticEnv()

		viper.SetDefault("api.timeout_seconds", 30)
		viper.SetDefault("checkout.shipping_charge", 50)
		viper.SetDefault("checkout.free_shipping_threshold", 500)
		viper.SetDefault("checkout.currency", "INR")

		logger = logger.With().Str(log.KeyProcess, "reading config").Logger()
		logger.Info().Msg("reading config")
		err := viper.ReadInConfig()
		if err != nil {
			err = fmt.Errorf("error when reading config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("read config")

		logger = logger.With().Str(log.KeyProcess, "unmarshaling config").Logger()
		logger.Info().Msg("unmarshaling config")
		err = viper.Unmarshal(&cfg)
		if err != nil {
			err = fmt.Errorf("error unmarshaling config with error=%w", err)
			logger.Fatal().Err(err).Msg(err.Error())
		}
		config = &cfg
		logger = logger.With().Any(log.KeyConfig, cfg).Logger()
		logger.Info().Msg("unmarshaled config")
	})
	return config
}
