package config

import (
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env     string
		Version string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Inventory struct {
		ReorderPoint    int    `mapstructure:"reorder_point"`
		ReorderQty      int    `mapstructure:"reorder_qty"`
		DebounceSeconds int    `mapstructure:"debounce_seconds"`
		DefaultStation  string `mapstructure:"default_station"`
	} `mapstructure:"inventory"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Vision struct {
		Endpoint string
		Token    string
		Model    string
	} `mapstructure:"vision"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

func Load(path string) (Config, error) {
	// .env (если есть) подхватываем до viper, чтобы работали APP_* переопределения
	_ = gotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("inventory.reorder_point", 10)
	v.SetDefault("inventory.reorder_qty", 24)
	v.SetDefault("inventory.debounce_seconds", 3)
	v.SetDefault("inventory.default_station", "packing-slip")

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
