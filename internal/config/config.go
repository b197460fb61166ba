package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	APIPort  int `yaml:"apiPort"`
	Database struct {
		Type     string `yaml:"type"`
		Path     string `yaml:"path"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Name     string `yaml:"name"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`
	Upstream struct {
		BaseURL         string `yaml:"baseUrl"`
		GenerateTimeout int    `yaml:"generateTimeout"` // seconds
		StatusTimeout   int    `yaml:"statusTimeout"`   // seconds
	} `yaml:"upstream"`
	Admin struct {
		LoginPath     string `yaml:"loginPath"`
		Password      string `yaml:"password"`
		SessionSecret string `yaml:"sessionSecret"`
	} `yaml:"admin"`
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SORAGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, err
		}
		log.Printf("Warning: Could not read config file: %s. Using defaults or environment variables.", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIPort == 0 {
		cfg.APIPort = 8081
		log.Println("APIPort not specified, using default 8081")
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/data/soragate.db"
		log.Println("Database path not specified, using default /data/soragate.db")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = "https://freesoragenerator.com"
	}
	if cfg.Upstream.GenerateTimeout == 0 {
		cfg.Upstream.GenerateTimeout = 120
	}
	if cfg.Upstream.StatusTimeout == 0 {
		cfg.Upstream.StatusTimeout = 60
	}

	if cfg.Admin.LoginPath == "" {
		cfg.Admin.LoginPath = "secure_login"
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = "admin123"
		log.Println("Admin password not specified, using insecure default")
	}
	if cfg.Admin.SessionSecret == "" {
		cfg.Admin.SessionSecret = "change-me-session-secret"
		log.Println("Session secret not specified, using insecure default")
	}

	return &cfg, nil
}
