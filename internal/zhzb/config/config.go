package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig controls the per-caller request limit
type RateLimitConfig struct {
	PerMinute     int    `mapstructure:"per_minute"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// KafkaConfig controls trade event publishing; no brokers disables it
type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	TradeTopic string   `mapstructure:"trade_topic"`
}

// PaymentConfig controls the recharge poller; no gateway address disables it
type PaymentConfig struct {
	GatewayAddress string        `mapstructure:"gateway_address"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PendingTTL     time.Duration `mapstructure:"pending_ttl"`
}

// SignupConfig is the grant credited to new accounts
type SignupConfig struct {
	AICPoints float64 `mapstructure:"aic_points"`
	HHPoints  float64 `mapstructure:"hh_points"`
	Balance   float64 `mapstructure:"balance"`
}

// AdminConfig optionally bootstraps an administrator account at startup
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// Config contains application configuration
type Config struct {
	RunAddress  string          `mapstructure:"run_address"`
	DatabaseURI string          `mapstructure:"database_uri"`
	JWTSecret   string          `mapstructure:"jwt_secret"`
	JWTTTL      time.Duration   `mapstructure:"jwt_ttl"`
	LogLevel    string          `mapstructure:"log_level"`
	Env         string          `mapstructure:"env"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	Payment     PaymentConfig   `mapstructure:"payment"`
	Signup      SignupConfig    `mapstructure:"signup"`
	Admin       AdminConfig     `mapstructure:"admin"`
}

// NewConfig loads configuration from the process flags, environment and
// optional config file, exiting on error.
func NewConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Load resolves configuration in increasing priority: defaults, config file,
// environment (ZHZB_ prefix plus RUN_ADDRESS and DATABASE_URI), flags.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("zhzb", flag.ContinueOnError)
	configPath := fs.String("c", os.Getenv("CONFIG_PATH"), "Config file path")
	runAddress := fs.String("a", "", "Server run address")
	databaseURI := fs.String("d", "", "Database URI")
	gatewayAddress := fs.String("r", "", "Payment gateway address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ZHZB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range map[string]string{
		"run_address":             "RUN_ADDRESS",
		"database_uri":            "DATABASE_URI",
		"payment.gateway_address": "PAYMENT_GATEWAY_ADDRESS",
	} {
		if err := v.BindEnv(key, "ZHZB_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			cfg.RunAddress = *runAddress
		case "d":
			cfg.DatabaseURI = *databaseURI
		case "r":
			cfg.Payment.GatewayAddress = *gatewayAddress
		}
	})

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run_address", ":8080")
	v.SetDefault("database_uri", "")
	v.SetDefault("jwt_secret", "zhzb-dev-secret")
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("log_level", "info")
	v.SetDefault("env", "dev")
	v.SetDefault("rate_limit.per_minute", 60)
	v.SetDefault("rate_limit.redis_addr", "")
	v.SetDefault("rate_limit.redis_password", "")
	v.SetDefault("rate_limit.redis_db", 0)
	v.SetDefault("rate_limit.redis_prefix", "zhzb:rl:")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.trade_topic", "zhzb.trades")
	v.SetDefault("payment.gateway_address", "")
	v.SetDefault("payment.poll_interval", "5s")
	v.SetDefault("payment.pending_ttl", "30m")
	v.SetDefault("signup.aic_points", 1000)
	v.SetDefault("signup.hh_points", 1000)
	v.SetDefault("signup.balance", 10000)
	v.SetDefault("admin.username", "")
	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
}

func (c *Config) validate() error {
	var errs []error
	if c.RunAddress == "" {
		errs = append(errs, errors.New("run_address must not be empty"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret must not be empty"))
	}
	if c.Env != "dev" && c.JWTSecret == "zhzb-dev-secret" {
		errs = append(errs, errors.New("jwt_secret must be set outside dev"))
	}
	if c.RateLimit.PerMinute <= 0 {
		errs = append(errs, errors.New("rate_limit.per_minute must be positive"))
	}
	if c.Signup.AICPoints < 0 || c.Signup.HHPoints < 0 || c.Signup.Balance < 0 {
		errs = append(errs, errors.New("signup grants must not be negative"))
	}
	if c.Admin.Username != "" && c.Admin.Password == "" {
		errs = append(errs, errors.New("admin.password is required with admin.username"))
	}
	return errors.Join(errs...)
}
