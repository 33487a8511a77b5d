package config

import (
	"time"

	"github.com/spf13/viper"
)

type AppConf struct {
	Env            string `mapstructure:"env"`
	Port           int    `mapstructure:"port"`
	ShutdownSecond int    `mapstructure:"shutdown_seconds"`
	FrontendURL    string `mapstructure:"frontend_url"`
}

type MongoConf struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	Users      string `mapstructure:"users_collection"`
}

type SQLiteConf struct {
	Path string `mapstructure:"path"`
}

type StorageConf struct {
	Driver string `mapstructure:"driver"` // gridfs | s3
	Bucket string `mapstructure:"bucket"` // gridfs bucket / s3 bucket name
	Region string `mapstructure:"region"`
}

type RedisConf struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConf struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	TokenTTLHours  int    `mapstructure:"token_ttl_hours"`
	MaxAttempts    int    `mapstructure:"max_login_attempts"`
	LockoutMinutes int    `mapstructure:"lockout_minutes"`
}

type OAuthProviderConf struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

type OAuthConf struct {
	Google OAuthProviderConf `mapstructure:"google"`
	GitHub OAuthProviderConf `mapstructure:"github"`
}

type WebAuthnConf struct {
	RPID          string `mapstructure:"rp_id"`
	RPName        string `mapstructure:"rp_name"`
	RPOrigin      string `mapstructure:"rp_origin"`
	ChallengeTTLS int    `mapstructure:"challenge_ttl_seconds"`
}

type UploadConf struct {
	MaxFiles      int   `mapstructure:"max_files"`
	MaxFileSizeMB int64 `mapstructure:"max_file_size_mb"`
}

type CacheConf struct {
	// TrustNonEmpty keeps the original read policy: a non-empty cache result is
	// returned without consulting the primary store.
	TrustNonEmpty bool `mapstructure:"trust_nonempty"`
}

type KafkaConf struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Config struct {
	App      AppConf      `mapstructure:"app"`
	Mongo    MongoConf    `mapstructure:"mongodb"`
	SQLite   SQLiteConf   `mapstructure:"sqlite"`
	Storage  StorageConf  `mapstructure:"storage"`
	Redis    RedisConf    `mapstructure:"redis"`
	Auth     AuthConf     `mapstructure:"auth"`
	OAuth    OAuthConf    `mapstructure:"oauth"`
	WebAuthn WebAuthnConf `mapstructure:"webauthn"`
	Upload   UploadConf   `mapstructure:"upload"`
	Cache    CacheConf    `mapstructure:"cache"`
	Kafka    KafkaConf    `mapstructure:"kafka"`

	// derived
	ShutdownTimeout time.Duration
	TokenTTL        time.Duration
	LockoutWindow   time.Duration
	ChallengeTTL    time.Duration
	MaxFileSize     int64
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	v.SetDefault("cache.trust_nonempty", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 3001
	}
	if cfg.App.ShutdownSecond == 0 {
		cfg.App.ShutdownSecond = 15
	}
	if cfg.App.FrontendURL == "" {
		cfg.App.FrontendURL = "http://localhost:3000"
	}
	if cfg.Mongo.Collection == "" {
		cfg.Mongo.Collection = "media"
	}
	if cfg.Mongo.Users == "" {
		cfg.Mongo.Users = "users"
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "cache.db"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "gridfs"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "media"
	}
	if cfg.Auth.TokenTTLHours == 0 {
		cfg.Auth.TokenTTLHours = 24 * 7
	}
	if cfg.Auth.MaxAttempts == 0 {
		cfg.Auth.MaxAttempts = 5
	}
	if cfg.Auth.LockoutMinutes == 0 {
		cfg.Auth.LockoutMinutes = 120
	}
	if cfg.WebAuthn.RPID == "" {
		cfg.WebAuthn.RPID = "localhost"
	}
	if cfg.WebAuthn.RPName == "" {
		cfg.WebAuthn.RPName = "PersonalMedia"
	}
	if cfg.WebAuthn.RPOrigin == "" {
		cfg.WebAuthn.RPOrigin = "http://localhost:3000"
	}
	if cfg.WebAuthn.ChallengeTTLS == 0 {
		cfg.WebAuthn.ChallengeTTLS = 300
	}
	if cfg.Upload.MaxFiles == 0 {
		cfg.Upload.MaxFiles = 10
	}
	if cfg.Upload.MaxFileSizeMB == 0 {
		cfg.Upload.MaxFileSizeMB = 100
	}

	cfg.ShutdownTimeout = time.Duration(cfg.App.ShutdownSecond) * time.Second
	cfg.TokenTTL = time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
	cfg.LockoutWindow = time.Duration(cfg.Auth.LockoutMinutes) * time.Minute
	cfg.ChallengeTTL = time.Duration(cfg.WebAuthn.ChallengeTTLS) * time.Second
	cfg.MaxFileSize = cfg.Upload.MaxFileSizeMB * 1024 * 1024
	return &cfg, nil
}
