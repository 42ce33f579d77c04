package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Admin    AdminConfig    `yaml:"admin"`
	Policy   PolicyConfig   `yaml:"policy"`
	Staking  StakingConfig  `yaml:"staking"`
	Pools    []PoolSeed     `yaml:"pools"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration; empty DSN disables persistence
// (in-memory state only, used by dev mode and tests)
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig event publisher configuration; empty URL disables publishing
type NATSConfig struct {
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	JWTSecret      string   `yaml:"jwtSecret"`
	PasswordBcrypt string   `yaml:"passwordBcrypt"` // bcrypt hash of the admin password
	TOTPSecret     string   `yaml:"totpSecret"`     // optional second factor; empty disables TOTP
	TokenTTLHours  int      `yaml:"tokenTTLHours"`
	AllowedIPs     []string `yaml:"allowedIPs"` // IPs/CIDRs allowed on policy mutation endpoints
}

// PolicyConfig seeds the policy store. The source contracts hardcoded these;
// here they are explicit construction parameters so tests can isolate them.
type PolicyConfig struct {
	RewardRateBps      uint64 `yaml:"rewardRateBps"`      // <= 1000 (10% APY)
	MinStakingPeriodS  int64  `yaml:"minStakingPeriodS"`  // default 30 days
	RestakeBonusBps    uint64 `yaml:"restakeBonusBps"`    // default 50 (0.5%)
	MaxRestakes        uint32 `yaml:"maxRestakes"`        // default 10
	DefaultPoolFeeBps  uint64 `yaml:"defaultPoolFeeBps"`  // default 30
	DefaultSpreadBps   uint64 `yaml:"defaultSpreadBps"`   // quoted spread, configured not derived
	MaxRewardRateBps   uint64 `yaml:"maxRewardRateBps"`   // admin ceiling, default 1000
}

// StakingConfig staking vault configuration
type StakingConfig struct {
	VaultAddress string `yaml:"vaultAddress"` // account holding staked principal
}

// PoolSeed seeds one pool at startup if it does not already exist
type PoolSeed struct {
	BaseToken    string `yaml:"baseToken"`
	QuoteToken   string `yaml:"quoteToken"`
	ReserveBase  string `yaml:"reserveBase"`
	ReserveQuote string `yaml:"reserveQuote"`
	FeeBps       uint64 `yaml:"feeBps"`
	SpreadBps    uint64 `yaml:"spreadBps"`
	VaultAddress string `yaml:"vaultAddress"`
}

// LedgerConfig external ledger configuration. Mode "memory" runs the built-in
// in-memory ledger (dev/test); anything else is wired by the host process.
type LedgerConfig struct {
	Mode           string `yaml:"mode"`
	TransferFeeBps uint64 `yaml:"transferFeeBps"` // fee-on-transfer simulation for memory mode
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

var AppConfig *Config

// LoadConfig loads the YAML configuration file, applies defaults and
// environment variable overrides, and stores the result in AppConfig.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	overrideFromEnv(&config)

	if config.Policy.RewardRateBps > config.Policy.MaxRewardRateBps {
		return fmt.Errorf("policy.rewardRateBps %d exceeds ceiling %d",
			config.Policy.RewardRateBps, config.Policy.MaxRewardRateBps)
	}

	AppConfig = &config
	return nil
}

// DefaultPolicy returns the policy parameters of the source contracts; used
// when no config file is in play (tests construct engines directly from it).
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		RewardRateBps:     500,
		MinStakingPeriodS: 30 * 86400,
		RestakeBonusBps:   50,
		MaxRestakes:       10,
		DefaultPoolFeeBps: 30,
		DefaultSpreadBps:  10,
		MaxRewardRateBps:  1000,
	}
}

func applyDefaults(config *Config) {
	def := DefaultPolicy()
	if config.Policy.MinStakingPeriodS == 0 {
		config.Policy.MinStakingPeriodS = def.MinStakingPeriodS
	}
	if config.Policy.RestakeBonusBps == 0 {
		config.Policy.RestakeBonusBps = def.RestakeBonusBps
	}
	if config.Policy.MaxRestakes == 0 {
		config.Policy.MaxRestakes = def.MaxRestakes
	}
	if config.Policy.DefaultPoolFeeBps == 0 {
		config.Policy.DefaultPoolFeeBps = def.DefaultPoolFeeBps
	}
	if config.Policy.MaxRewardRateBps == 0 {
		config.Policy.MaxRewardRateBps = def.MaxRewardRateBps
	}
	if config.Admin.TokenTTLHours == 0 {
		config.Admin.TokenTTLHours = 24
	}
	if config.NATS.StreamName == "" {
		config.NATS.StreamName = "LEDGER_EVENTS"
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "ledger"
	}
	if config.Ledger.Mode == "" {
		config.Ledger.Mode = "memory"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
}

func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}
	if hash := os.Getenv("ADMIN_PASSWORD_BCRYPT"); hash != "" {
		config.Admin.PasswordBcrypt = hash
	}
	if totp := os.Getenv("ADMIN_TOTP_SECRET"); totp != "" {
		config.Admin.TOTPSecret = totp
	}
	if ips := os.Getenv("ADMIN_ALLOWED_IPS"); ips != "" {
		parts := strings.Split(ips, ",")
		config.Admin.AllowedIPs = config.Admin.AllowedIPs[:0]
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				config.Admin.AllowedIPs = append(config.Admin.AllowedIPs, trimmed)
			}
		}
	}
	if rate := os.Getenv("POLICY_REWARD_RATE_BPS"); rate != "" {
		if v, err := strconv.ParseUint(rate, 10, 64); err == nil {
			config.Policy.RewardRateBps = v
		}
	}
	if vault := os.Getenv("STAKING_VAULT_ADDRESS"); vault != "" {
		config.Staking.VaultAddress = vault
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		config.CORS.AllowedOrigins = config.CORS.AllowedOrigins[:0]
		for _, o := range parts {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}
