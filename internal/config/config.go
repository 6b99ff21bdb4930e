// Package config はアプリケーション設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はサーバー起動に必要な設定値です。
type Config struct {
	Port         string        `mapstructure:"port"`
	DBDriver     string        `mapstructure:"db_driver"`
	DBUser       string        `mapstructure:"db_user"`
	DBPass       string        `mapstructure:"db_pass"`
	DBHost       string        `mapstructure:"db_host"`
	DBPort       string        `mapstructure:"db_port"`
	DBName       string        `mapstructure:"db_name"`
	DBPath       string        `mapstructure:"db_path"`
	QueryTimeout time.Duration `mapstructure:"db_query_timeout"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	Timezone     string        `mapstructure:"app_timezone"`
}

// ErrMissingJWTSecret は JWT_SECRET が未設定の場合のエラーです。
var ErrMissingJWTSecret = errors.New("JWT_SECRET environment variable not set")

var keys = []string{
	"port", "db_driver", "db_user", "db_pass", "db_host", "db_port", "db_name",
	"db_path", "db_query_timeout", "jwt_secret", "cors_origins", "app_timezone",
}

// Load は .env と環境変数 (任意で config.yaml) から設定を読み込みます。
// configPath が空の場合、設定ファイルは読みません。
func Load(envFile, configPath string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: could not load %s: %v", envFile, err)
		}
	}

	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("db_driver", "mysql")
	v.SetDefault("db_host", "127.0.0.1")
	v.SetDefault("db_port", "3306")
	v.SetDefault("db_path", "todos.db")
	v.SetDefault("db_query_timeout", "5s")
	v.SetDefault("cors_origins", "http://localhost:3000")
	v.SetDefault("app_timezone", "Local")

	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("binding env %s: %w", k, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{
		Port:         v.GetString("port"),
		DBDriver:     strings.ToLower(v.GetString("db_driver")),
		DBUser:       v.GetString("db_user"),
		DBPass:       v.GetString("db_pass"),
		DBHost:       v.GetString("db_host"),
		DBPort:       v.GetString("db_port"),
		DBName:       v.GetString("db_name"),
		DBPath:       v.GetString("db_path"),
		QueryTimeout: v.GetDuration("db_query_timeout"),
		JWTSecret:    v.GetString("jwt_secret"),
		CORSOrigins:  splitList(v.GetString("cors_origins")),
		Timezone:     v.GetString("app_timezone"),
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	if cfg.DBDriver != "mysql" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location は APP_TIMEZONE を time.Location に変換します。
// "今日" の境界はこのロケーションで計算されます。
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DSN はドライバーに応じた接続文字列を返します。
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.DBPath
	}
	// 例: user:pass@tcp(db:3306)/dbname?parseTime=true
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
