package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/threatflux/scangate/internal/models"
)

// Scan types
const (
	ScanTypeExternal   = "external"
	ScanTypeStandalone = "standalone"
)

// EnvPrefix is the prefix of every environment variable read by the configuration
const EnvPrefix = "SCANGATE"

var validate = newValidator()

// Config holds all configuration for a scan run
type Config struct {
	// Scan describes the image to scan
	Scan struct {
		Type       string        `mapstructure:"type" validate:"required,oneof=external standalone"`
		Repository string        `mapstructure:"repository" validate:"required"`
		Tag        string        `mapstructure:"tag" validate:"required"`
		ScanLayers bool          `mapstructure:"scan_layers"`
		Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	} `mapstructure:"scan"`

	// Scanner is the remote scanning service used by external scans
	Scanner struct {
		URL                  string        `mapstructure:"url"`
		Username             string        `mapstructure:"username"`
		Password             string        `mapstructure:"password"` // Sensitive
		AcceptUntrustedCerts bool          `mapstructure:"accept_untrusted_certs"`
		WaitForAvailability  bool          `mapstructure:"wait_for_availability"`
		AvailabilityInterval time.Duration `mapstructure:"availability_interval" validate:"gte=0"`
		RequestTimeout       time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
		MaxRetries           int           `mapstructure:"max_retries" validate:"gte=0"`
		RetryDelay           time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	} `mapstructure:"scanner"`

	// Registry holds the image registry; empty means the image is already on the scanning host
	Registry struct {
		URL      string `mapstructure:"url"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"` // Sensitive
	} `mapstructure:"registry"`

	// Policy holds the pass/fail rules
	Policy struct {
		High      models.Threshold `mapstructure:"high"`
		Medium    models.Threshold `mapstructure:"medium"`
		Blacklist models.Blacklist `mapstructure:"blacklist"`
	} `mapstructure:"policy"`

	// Output controls where the rendered reports go
	Output struct {
		JSONPath     string `mapstructure:"json_path"`
		MarkdownPath string `mapstructure:"markdown_path"`
		StagingDir   string `mapstructure:"staging_dir"`
		SummaryTitle string `mapstructure:"summary_title"`
	} `mapstructure:"output"`

	// Standalone configures the local scanner container
	Standalone struct {
		Image struct {
			Repository string `mapstructure:"repository"`
			Tag        string `mapstructure:"tag"`
		} `mapstructure:"image"`
		Registry struct {
			URL      string `mapstructure:"url"`
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"` // Sensitive
		} `mapstructure:"registry"`
		LicensePath string `mapstructure:"license_path"`
		MountPath   string `mapstructure:"mount_path"`
		Platform    string `mapstructure:"platform"`
	} `mapstructure:"standalone"`

	// Logging configuration
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	} `mapstructure:"logging"`

	// Security configuration
	Security struct {
		EncryptionKey string `mapstructure:"encryption_key"` // Sensitive
	} `mapstructure:"security"`
}

// Load reads defaults, the optional config file and SCANGATE_* environment
// variables into a validated Config. Encrypted secrets are decrypted.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	if err := loadConfigFile(v, configFile); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	loadEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Policy.Blacklist.Identifiers = ParseIdentifiers(v.Get("policy.blacklist.identifiers"))

	if err := cfg.decryptSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Scan defaults
	v.SetDefault("scan.type", ScanTypeExternal)
	v.SetDefault("scan.tag", "latest")
	v.SetDefault("scan.scan_layers", false)
	v.SetDefault("scan.timeout", "0s")

	// Scanner defaults
	v.SetDefault("scanner.accept_untrusted_certs", false)
	v.SetDefault("scanner.wait_for_availability", false)
	v.SetDefault("scanner.availability_interval", "1s")
	v.SetDefault("scanner.request_timeout", "0s")
	v.SetDefault("scanner.max_retries", 0)
	v.SetDefault("scanner.retry_delay", "1s")

	// Policy defaults
	v.SetDefault("policy.high.enabled", false)
	v.SetDefault("policy.high.max_count", 1)
	v.SetDefault("policy.medium.enabled", false)
	v.SetDefault("policy.medium.max_count", 1)
	v.SetDefault("policy.blacklist.enabled", false)

	// Output defaults
	v.SetDefault("output.summary_title", "NeuVector scan report")

	// Standalone defaults
	v.SetDefault("standalone.image.repository", "neuvector/scanner")
	v.SetDefault("standalone.image.tag", "latest")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// loadConfigFile loads configuration from a file. A missing default file is
// not an error; a missing explicit file is.
func loadConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		return v.ReadInConfig()
	}

	v.SetConfigName("scangate")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/scangate")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// loadEnvVars binds SCANGATE_* environment variables
func loadEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// AutomaticEnv only covers keys viper already knows about
	for _, key := range []string{
		"scan.repository",
		"scanner.url", "scanner.username", "scanner.password",
		"registry.url", "registry.username", "registry.password",
		"policy.blacklist.identifiers",
		"output.json_path", "output.markdown_path", "output.staging_dir",
		"standalone.registry.url", "standalone.registry.username", "standalone.registry.password",
		"standalone.license_path", "standalone.mount_path", "standalone.platform",
		"security.encryption_key",
	} {
		_ = v.BindEnv(key)
	}
}

// ParseIdentifiers accepts a list or a newline/comma separated string and
// returns the trimmed, non-empty identifiers.
func ParseIdentifiers(value interface{}) []string {
	var raw []string
	switch val := value.(type) {
	case nil:
		return []string{}
	case string:
		raw = strings.FieldsFunc(val, func(r rune) bool {
			return r == '\n' || r == '\r' || r == ','
		})
	case []string:
		raw = val
	case []interface{}:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = []string{fmt.Sprint(val)}
	}

	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Validate runs struct tag validation and the cross-field rules and returns
// every problem in a single *ConfigurationError.
func (c *Config) Validate() error {
	result := ValidationResult{Errors: []ValidationError{}}

	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				result.Errors = append(result.Errors, ValidationError{
					Field:   fieldKey(fe.Namespace()),
					Message: describeTag(fe),
				})
			}
		} else {
			result.Errors = append(result.Errors, ValidationError{Field: "config", Message: err.Error()})
		}
	}

	validateConfig(c, &result)

	if len(result.Errors) > 0 {
		sort.SliceStable(result.Errors, func(i, j int) bool {
			return result.Errors[i].Field < result.Errors[j].Field
		})
		return &ConfigurationError{Errors: result.Errors}
	}
	return nil
}

// validateConfig checks the rules that depend on more than one field
func validateConfig(c *Config, result *ValidationResult) {
	add := func(field, message string) {
		result.Errors = append(result.Errors, ValidationError{Field: field, Message: message})
	}

	switch c.Scan.Type {
	case ScanTypeExternal:
		if c.Scanner.URL == "" {
			add("scanner.url", "scanner URL is required for external scans")
		} else if err := validate.Var(c.Scanner.URL, "url"); err != nil {
			add("scanner.url", fmt.Sprintf("invalid scanner URL: %s", c.Scanner.URL))
		}
		if c.Scanner.Username == "" {
			add("scanner.username", "scanner username is required for external scans")
		}
		if c.Scanner.Password == "" {
			add("scanner.password", "scanner password is required for external scans")
		}
	case ScanTypeStandalone:
		if c.Standalone.LicensePath == "" {
			add("standalone.license_path", "license file is required for standalone scans")
		} else if !fileExists(c.Standalone.LicensePath) {
			add("standalone.license_path", fmt.Sprintf("License file not found at %q", c.Standalone.LicensePath))
		}
		if c.Standalone.Image.Repository == "" || c.Standalone.Image.Tag == "" {
			add("standalone.image", "scanner image repository and tag are required for standalone scans")
		}
		if c.Standalone.Registry.Username != "" && c.Standalone.Registry.URL == "" {
			add("standalone.registry.url", "scanner registry URL is required when registry credentials are set")
		}
	}

	// Registry credentials come as a pair
	if (c.Registry.Username == "") != (c.Registry.Password == "") {
		add("registry", "registry username and password must be provided together")
	}
	if c.Registry.URL == "" && c.Registry.Username != "" {
		add("registry.url", "registry URL is required when registry credentials are set")
	}

	if c.Policy.High.Enabled && c.Policy.High.MaxCount < 0 {
		add("policy.high.max_count", "max count cannot be negative")
	}
	if c.Policy.Medium.Enabled && c.Policy.Medium.MaxCount < 0 {
		add("policy.medium.max_count", "max count cannot be negative")
	}

	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			add("logging.level", fmt.Sprintf("invalid log level: %s", c.Logging.Level))
		}
	}
}

// Credentials returns the scanning service credentials
func (c *Config) Credentials() models.Credentials {
	return models.Credentials{
		URL:                  c.Scanner.URL,
		Username:             c.Scanner.Username,
		Password:             c.Scanner.Password,
		AcceptUntrustedCerts: c.Scanner.AcceptUntrustedCerts,
	}
}

// ScanRequest returns the scan request; the registry is nil when no registry URL is set
func (c *Config) ScanRequest() models.ScanRequest {
	req := models.ScanRequest{
		Repository: c.Scan.Repository,
		Tag:        c.Scan.Tag,
		ScanLayers: c.Scan.ScanLayers,
	}
	if c.Registry.URL != "" {
		req.Registry = &models.RegistryAuth{
			URL:      c.Registry.URL,
			Username: c.Registry.Username,
			Password: c.Registry.Password,
		}
	}
	return req
}

// PolicyRules returns the pass/fail rules
func (c *Config) PolicyRules() models.Policy {
	high := c.Policy.High
	medium := c.Policy.Medium
	blacklist := models.Blacklist{
		Enabled:     c.Policy.Blacklist.Enabled,
		Identifiers: append([]string(nil), c.Policy.Blacklist.Identifiers...),
	}
	return models.Policy{
		HighThreshold:   &high,
		MediumThreshold: &medium,
		Blacklist:       &blacklist,
	}
}

// IsStandalone reports whether the scan runs in a local scanner container
func (c *Config) IsStandalone() bool {
	return c.Scan.Type == ScanTypeStandalone
}

// SafeString returns a string with sensitive information masked
func SafeString(val string) string {
	if val == "" {
		return ""
	}
	return "********"
}

// MaskSensitiveFields returns a copy of the config with sensitive fields masked
func (c *Config) MaskSensitiveFields() Config {
	masked := *c
	masked.Scanner.Password = SafeString(masked.Scanner.Password)
	masked.Registry.Password = SafeString(masked.Registry.Password)
	masked.Standalone.Registry.Password = SafeString(masked.Standalone.Registry.Password)
	masked.Security.EncryptionKey = SafeString(masked.Security.EncryptionKey)
	return masked
}

// String returns a string representation of the config with sensitive information masked
func (c *Config) String() string {
	masked := c.MaskSensitiveFields()

	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	formatStruct(&sb, reflect.ValueOf(masked), 1)
	return sb.String()
}

// formatStruct writes the fields of a config struct in declaration order
func formatStruct(sb *strings.Builder, val reflect.Value, indent int) {
	indentStr := strings.Repeat("  ", indent)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		name := typ.Field(i).Tag.Get("mapstructure")
		if name == "" {
			name = typ.Field(i).Name
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			fmt.Fprintf(sb, "%s%s:\n", indentStr, name)
			formatStruct(sb, field, indent+1)
			continue
		}
		fmt.Fprintf(sb, "%s%s: %v\n", indentStr, name, field.Interface())
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldKey turns a validator namespace like "Config.scan.tag" into "scan.tag"
func fieldKey(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
