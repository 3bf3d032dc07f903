// Package daemon holds the scripd process configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scrip-network/scrip/internal/domain"
)

// Config is the scripd configuration, loaded from TOML.
type Config struct {
	API        APIConfig        `toml:"api"`
	Store      StoreConfig      `toml:"store"`
	Settlement SettlementConfig `toml:"settlement"`
	Identity   IdentityConfig   `toml:"identity"`
	Policies   []PolicyConfig   `toml:"policy"`
	Log        LogConfig        `toml:"log"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// StoreConfig controls the database location.
type StoreConfig struct {
	Path string `toml:"path"`
}

// SettlementConfig tunes the settlement economics. Amounts are decimal
// credit strings, durations are Go duration strings.
type SettlementConfig struct {
	MinReward        string  `toml:"min_reward"`
	MaxReward        string  `toml:"max_reward"`
	PromoLifetimeCap string  `toml:"promo_lifetime_cap"`
	CompletionRate   float64 `toml:"completion_rate"`
	DecayFactor      float64 `toml:"decay_factor"`
	StakeRate        float64 `toml:"stake_rate"`
	ClawbackRate     float64 `toml:"clawback_rate"`
	TestsWeight      float64 `toml:"tests_weight"`
	QuorumWeight     float64 `toml:"quorum_weight"`
	RequesterWeight  float64 `toml:"requester_weight"`
	ApprovalTTL      string  `toml:"approval_ttl"`
	DisputeWindow    string  `toml:"dispute_window"`
	ArbitrationTTL   string  `toml:"arbitration_ttl"`
}

// IdentityConfig binds marketplace usernames to signing identities.
type IdentityConfig struct {
	Bindings map[string]string `toml:"bindings"`
}

// PolicyConfig is one [[policy]] block: the spend policy governing an
// identity. Amounts are decimal credit strings.
type PolicyConfig struct {
	Identity         string       `toml:"identity"`
	Enabled          bool         `toml:"enabled"`
	MaxPerBounty     string       `toml:"max_per_bounty"`
	MaxPerDay        string       `toml:"max_per_day"`
	Tiers            []TierConfig `toml:"tiers"`
	AllowedDelegates []string     `toml:"allowed_delegates"`
}

// TierConfig is one approval tier inside a policy.
type TierConfig struct {
	Threshold string `toml:"threshold"`
	Operator  string `toml:"operator"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           7433,
			MetricsEnabled: true,
		},
		Store: StoreConfig{
			Path: defaultStorePath(),
		},
		Settlement: SettlementConfig{
			MinReward:        "1",
			MaxReward:        "10000",
			PromoLifetimeCap: "100",
			CompletionRate:   0.1,
			DecayFactor:      0.99,
			StakeRate:        0.1,
			ClawbackRate:     0.1,
			TestsWeight:      1.5,
			QuorumWeight:     1.2,
			RequesterWeight:  1.0,
			ApprovalTTL:      "72h",
			DisputeWindow:    "72h",
			ArbitrationTTL:   "168h",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads the TOML config at path, layered over defaults. A missing
// file returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the parseable fields.
func (c Config) Validate() error {
	if _, err := c.MinReward(); err != nil {
		return err
	}
	if _, err := c.MaxReward(); err != nil {
		return err
	}
	if _, err := c.PromoLifetimeCap(); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"approval_ttl":    c.Settlement.ApprovalTTL,
		"dispute_window":  c.Settlement.DisputeWindow,
		"arbitration_ttl": c.Settlement.ArbitrationTTL,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: settlement.%s: %v", domain.ErrValidation, name, err)
		}
	}
	if c.Settlement.DecayFactor <= 0 || c.Settlement.DecayFactor > 1 {
		return fmt.Errorf("%w: settlement.decay_factor must be in (0, 1]", domain.ErrValidation)
	}
	if _, err := c.SpendPolicies(); err != nil {
		return err
	}
	return nil
}

// Directory returns the configured user→identity bindings.
func (c Config) Directory() map[string]domain.Identity {
	dir := make(map[string]domain.Identity, len(c.Identity.Bindings))
	for user, id := range c.Identity.Bindings {
		dir[user] = domain.Identity(id)
	}
	return dir
}

// SpendPolicies parses the [[policy]] blocks into domain policies.
func (c Config) SpendPolicies() (map[domain.Identity]domain.SpendPolicy, error) {
	policies := make(map[domain.Identity]domain.SpendPolicy, len(c.Policies))
	for _, pc := range c.Policies {
		if pc.Identity == "" {
			return nil, fmt.Errorf("%w: policy block is missing an identity", domain.ErrValidation)
		}
		policy := domain.SpendPolicy{Enabled: pc.Enabled}
		var err error
		if pc.MaxPerBounty != "" {
			if policy.MaxPerBounty, err = parseCredits("policy.max_per_bounty", pc.MaxPerBounty); err != nil {
				return nil, err
			}
		}
		if pc.MaxPerDay != "" {
			if policy.MaxPerDay, err = parseCredits("policy.max_per_day", pc.MaxPerDay); err != nil {
				return nil, err
			}
		}
		for _, tc := range pc.Tiers {
			threshold, err := parseCredits("policy.tiers.threshold", tc.Threshold)
			if err != nil {
				return nil, err
			}
			if tc.Operator == "" {
				return nil, fmt.Errorf("%w: policy tier is missing an operator", domain.ErrValidation)
			}
			policy.ApprovalTiers = append(policy.ApprovalTiers, domain.ApprovalTier{
				Threshold: threshold,
				Operator:  domain.Identity(tc.Operator),
			})
		}
		for _, d := range pc.AllowedDelegates {
			policy.AllowedDelegates = append(policy.AllowedDelegates, domain.Identity(d))
		}
		policies[domain.Identity(pc.Identity)] = policy
	}
	return policies, nil
}

// MinReward parses the configured minimum bounty reward.
func (c Config) MinReward() (domain.Amount, error) {
	return parseCredits("min_reward", c.Settlement.MinReward)
}

// MaxReward parses the configured maximum bounty reward.
func (c Config) MaxReward() (domain.Amount, error) {
	return parseCredits("max_reward", c.Settlement.MaxReward)
}

// PromoLifetimeCap parses the lifetime promo ceiling per identity.
func (c Config) PromoLifetimeCap() (domain.Amount, error) {
	return parseCredits("promo_lifetime_cap", c.Settlement.PromoLifetimeCap)
}

// ApprovalTTL returns the approval request lifetime.
func (c Config) ApprovalTTL() time.Duration {
	return durationOr(c.Settlement.ApprovalTTL, 72*time.Hour)
}

// DisputeWindow returns how long after resolution a dispute may open.
func (c Config) DisputeWindow() time.Duration {
	return durationOr(c.Settlement.DisputeWindow, 72*time.Hour)
}

// ArbitrationTTL returns the arbitration deadline for pending disputes.
func (c Config) ArbitrationTTL() time.Duration {
	return durationOr(c.Settlement.ArbitrationTTL, 168*time.Hour)
}

// ListenAddr returns the host:port for the API listener.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// DefaultConfigPath is ~/.scrip/config.toml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".scrip", "config.toml")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "scrip.db"
	}
	return filepath.Join(home, ".scrip", "scrip.db")
}

func parseCredits(name, v string) (domain.Amount, error) {
	amt, err := domain.ParseAmount(v)
	if err != nil {
		return 0, fmt.Errorf("%w: settlement.%s: %v", domain.ErrValidation, name, err)
	}
	return amt, nil
}

func durationOr(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
