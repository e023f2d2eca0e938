package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	QueueConfig struct {
		Backend    string // memory | nats
		URL        string
		Topic      string
		MaxRetries int
	}

	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		WorkDir          string
		RollbarToken     string
		SendgridAPIKey   string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address

		Server         ServerConfig
		Database       DatabaseConfig
		LegacyDatabase DatabaseConfig
		Queue          QueueConfig

		API struct {
			Key string
		}
		Worker struct {
			MetricsAddr string
		}
		Dispatch struct {
			Sync           bool
			ReminderWindow time.Duration
		}
		Migrate struct {
			PageSize int
		}
	}
)

// Address returns the "host:port" of the database server.
func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Warsha")
	v.SetDefault("build", "dev")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")

	v.SetDefault("server.host", "localhost:8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "warsha")
	v.SetDefault("database.name", "warsha")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("legacyDatabase.engine", "postgres")
	v.SetDefault("legacyDatabase.host", "localhost")
	v.SetDefault("legacyDatabase.port", 5432)
	v.SetDefault("legacyDatabase.name", "warsha_legacy")
	v.SetDefault("legacyDatabase.disableTLS", true)

	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.url", "nats://localhost:4222")
	v.SetDefault("queue.topic", "warsha-jobs")
	v.SetDefault("queue.maxRetries", 5)

	v.SetDefault("worker.metricsAddr", "localhost:9100")
	v.SetDefault("dispatch.sync", false)
	v.SetDefault("dispatch.reminderWindow", 7*24*time.Hour)
	v.SetDefault("migrate.pageSize", 500)
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the env name, e.g. DEV_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		Build:           v.GetString("build"),
		WorkDir:         wd,
		RollbarToken:    v.GetString("rollbarToken"),
		SendgridAPIKey:  v.GetString("sendgridApiKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database:       loadDatabaseConfig(v, "database"),
		LegacyDatabase: loadDatabaseConfig(v, "legacyDatabase"),
		Queue: QueueConfig{
			Backend:    strings.ToLower(v.GetString("queue.backend")),
			URL:        v.GetString("queue.url"),
			Topic:      v.GetString("queue.topic"),
			MaxRetries: v.GetInt("queue.maxRetries"),
		},
	}
	conf.API.Key = v.GetString("api.key")
	conf.Worker.MetricsAddr = v.GetString("worker.metricsAddr")
	conf.Dispatch.Sync = v.GetBool("dispatch.sync")
	conf.Dispatch.ReminderWindow = v.GetDuration("dispatch.reminderWindow")
	conf.Migrate.PageSize = v.GetInt("migrate.pageSize")

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatal(fmt.Errorf("config.defaultFromEmail: %v", err))
	}
	conf.DefaultFromEmail = *from
	return conf
}

func loadDatabaseConfig(v *viper.Viper, key string) DatabaseConfig {
	return DatabaseConfig{
		Engine:        v.GetString(key + ".engine"),
		Host:          v.GetString(key + ".host"),
		Port:          v.GetInt(key + ".port"),
		User:          v.GetString(key + ".user"),
		Password:      v.GetString(key + ".password"),
		AdminUser:     v.GetString(key + ".adminUser"),
		AdminPassword: v.GetString(key + ".adminPassword"),
		Name:          v.GetString(key + ".name"),
		DisableTLS:    v.GetBool(key + ".disableTLS"),
	}
}
