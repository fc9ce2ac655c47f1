// Package config loads crawler settings from defaults, an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/grez-lucas/sosh-invoices/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AppName   = "sosh-invoices"
	EnvPrefix = "SOSH"

	// AccountPlaceholder is substituted in PortalConfig.ListingURLTemplate.
	AccountPlaceholder = "{accountId}"
)

type Config struct {
	Portal      PortalConfig      `mapstructure:"portal"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Timeouts    TimeoutConfig     `mapstructure:"timeouts"`
	Output      OutputConfig      `mapstructure:"output"`
	Debug       DebugConfig       `mapstructure:"debug"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Server      ServerConfig      `mapstructure:"server"`
	Logger      logging.Config    `mapstructure:"logger"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
}

// PortalConfig holds every external, versionable address and URL pattern of
// the portal.
type PortalConfig struct {
	EntryURL           string `mapstructure:"entry_url"`
	LoginURL           string `mapstructure:"login_url"`
	ListingURLTemplate string `mapstructure:"listing_url_template"`
	LoginPattern       string `mapstructure:"login_pattern"`
	PublicPattern      string `mapstructure:"public_pattern"`
	CustomerPattern    string `mapstructure:"customer_pattern"`
	InvoiceURLPattern  string `mapstructure:"invoice_url_pattern"`
	InvoiceLinkPattern string `mapstructure:"invoice_link_pattern"`
}

// ListingURL renders the invoice history address of an account. The id is
// escaped as a single path segment.
func (p PortalConfig) ListingURL(accountID string) string {
	return strings.ReplaceAll(p.ListingURLTemplate, AccountPlaceholder, url.PathEscape(accountID))
}

type BrowserConfig struct {
	Headless       bool   `mapstructure:"headless"`
	ProfileDir     string `mapstructure:"profile_dir"`
	Bin            string `mapstructure:"bin"`
	UserAgent      string `mapstructure:"user_agent"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
	Stealth        bool   `mapstructure:"stealth"`
	HumanTyping    bool   `mapstructure:"human_typing"`
}

type TimeoutConfig struct {
	IdentifierField      time.Duration `mapstructure:"identifier_field"`
	IdentifierFieldFrame time.Duration `mapstructure:"identifier_field_frame"`
	PasswordField        time.Duration `mapstructure:"password_field"`
	PasswordFieldFrame   time.Duration `mapstructure:"password_field_frame"`
	GateClickRace        time.Duration `mapstructure:"gate_click_race"`
	GateURL              time.Duration `mapstructure:"gate_url"`
	PostLogin            time.Duration `mapstructure:"post_login"`
	PasswordMode         time.Duration `mapstructure:"password_mode"`
	PasswordModeRace     time.Duration `mapstructure:"password_mode_race"`
	ContinueSettle       time.Duration `mapstructure:"continue_settle"`
	ChallengeProbeDelay  time.Duration `mapstructure:"challenge_probe_delay"`
	CookieAccept         time.Duration `mapstructure:"cookie_accept"`
	NetworkIdle          time.Duration `mapstructure:"network_idle"`
	DiscoveryGrace       time.Duration `mapstructure:"discovery_grace"`
	Download             time.Duration `mapstructure:"download"`
	Navigation           time.Duration `mapstructure:"navigation"`
	Fill                 time.Duration `mapstructure:"fill"`
	SnapshotSettle       time.Duration `mapstructure:"snapshot_settle"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type DebugConfig struct {
	Screenshots bool   `mapstructure:"screenshots"`
	Dir         string `mapstructure:"dir"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// CredentialsConfig is only read by the CLI; the HTTP API uses the store.
type CredentialsConfig struct {
	Login      string `mapstructure:"login"`
	Password   string `mapstructure:"password"`
	ContractID string `mapstructure:"contract_id"`
}

// DefaultProfileDir is where the persistent browser profile lives unless
// configured otherwise.
func DefaultProfileDir() string {
	return filepath.Join(xdg.DataHome, AppName, "session")
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	// -- Portal --
	v.SetDefault("portal.entry_url", "https://www.sosh.fr/")
	v.SetDefault("portal.login_url", "https://login.orange.fr/")
	v.SetDefault("portal.listing_url_template", "https://espace-client.orange.fr/facture-paiement/"+AccountPlaceholder+"/historique-des-factures")
	v.SetDefault("portal.login_pattern", `id\.orange\.fr|login\.orange\.fr`)
	v.SetDefault("portal.public_pattern", `sosh\.fr`)
	v.SetDefault("portal.customer_pattern", `espace-client\.orange\.fr`)
	v.SetDefault("portal.invoice_url_pattern", `facture|invoice|bill|historique`)
	v.SetDefault("portal.invoice_link_pattern", `facture`)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.profile_dir", DefaultProfileDir())
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport_width", 1400)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.human_typing", false)

	// -- Timeouts --
	v.SetDefault("timeouts.identifier_field", "15s")
	v.SetDefault("timeouts.identifier_field_frame", "8s")
	v.SetDefault("timeouts.password_field", "25s")
	v.SetDefault("timeouts.password_field_frame", "15s")
	v.SetDefault("timeouts.gate_click_race", "4s")
	v.SetDefault("timeouts.gate_url", "20s")
	v.SetDefault("timeouts.post_login", "20s")
	v.SetDefault("timeouts.password_mode", "2s")
	v.SetDefault("timeouts.password_mode_race", "1500ms")
	v.SetDefault("timeouts.continue_settle", "800ms")
	v.SetDefault("timeouts.challenge_probe_delay", "500ms")
	v.SetDefault("timeouts.cookie_accept", "3s")
	v.SetDefault("timeouts.network_idle", "30s")
	v.SetDefault("timeouts.discovery_grace", "2s")
	v.SetDefault("timeouts.download", "30s")
	v.SetDefault("timeouts.navigation", "30s")
	v.SetDefault("timeouts.fill", "30s")
	v.SetDefault("timeouts.snapshot_settle", "5s")

	// -- Output / Debug --
	v.SetDefault("output.dir", filepath.Join("tmp", "invoices"))
	v.SetDefault("debug.screenshots", false)
	v.SetDefault("debug.dir", "tmp")

	// -- Database / Server --
	v.SetDefault("database.url", "")
	v.SetDefault("server.addr", ":8080")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.service_name", "")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	v.SetDefault("credentials.login", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("credentials.contract_id", "")
}

// legacyEnv maps the variable names the first crawler scripts used.
var legacyEnv = map[string]string{
	"credentials.login":       "ORANGE_LOGIN",
	"credentials.password":    "ORANGE_PASSWORD",
	"credentials.contract_id": "ORANGE_CONTRACT_ID",
	"browser.headless":        "HEADLESS",
	"output.dir":              "INVOICE_DIR",
	"database.url":            "DATABASE_URL",
	"debug.screenshots":       "DEBUG_SCREENSHOT",
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		// Prefixed variables keep precedence because BindEnv takes the first
		// name that is set.
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}
	return v
}

// Load reads the .env file (if any), the YAML file at path (if non-empty)
// and the environment, then validates the result.
func Load(path string) (*Config, error) {
	// A missing .env file is the normal production case.
	_ = godotenv.Load()

	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the validated default configuration.
func Default() *Config {
	cfg, err := FromViper(NewViper())
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	var errs []error

	p := c.Portal
	for name, value := range map[string]string{
		"portal.entry_url":            p.EntryURL,
		"portal.login_url":            p.LoginURL,
		"portal.listing_url_template": p.ListingURLTemplate,
		"browser.profile_dir":         c.Browser.ProfileDir,
		"output.dir":                  c.Output.Dir,
	} {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if p.ListingURLTemplate != "" && !strings.Contains(p.ListingURLTemplate, AccountPlaceholder) {
		errs = append(errs, fmt.Errorf("portal.listing_url_template must contain %s", AccountPlaceholder))
	}
	for name, pattern := range map[string]string{
		"portal.login_pattern":        p.LoginPattern,
		"portal.public_pattern":       p.PublicPattern,
		"portal.customer_pattern":     p.CustomerPattern,
		"portal.invoice_url_pattern":  p.InvoiceURLPattern,
		"portal.invoice_link_pattern": p.InvoiceLinkPattern,
	} {
		if pattern == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	t := c.Timeouts
	for name, d := range map[string]time.Duration{
		"timeouts.identifier_field": t.IdentifierField,
		"timeouts.password_field":   t.PasswordField,
		"timeouts.gate_click_race":  t.GateClickRace,
		"timeouts.gate_url":         t.GateURL,
		"timeouts.post_login":       t.PostLogin,
		"timeouts.password_mode":    t.PasswordMode,
		"timeouts.cookie_accept":    t.CookieAccept,
		"timeouts.network_idle":     t.NetworkIdle,
		"timeouts.download":         t.Download,
		"timeouts.navigation":       t.Navigation,
		"timeouts.fill":             t.Fill,
		"timeouts.snapshot_settle":  t.SnapshotSettle,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	return errors.Join(errs...)
}
