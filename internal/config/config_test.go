package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupExternalEnv(t *testing.T) {
	t.Setenv("SCANGATE_SCAN_REPOSITORY", "library/alpine")
	t.Setenv("SCANGATE_SCAN_TAG", "3.18")
	t.Setenv("SCANGATE_SCANNER_URL", "https://scanner.example.com:10443")
	t.Setenv("SCANGATE_SCANNER_USERNAME", "admin")
	t.Setenv("SCANGATE_SCANNER_PASSWORD", "admin")
}

func TestLoadFromEnvironment(t *testing.T) {
	setupExternalEnv(t)
	t.Setenv("SCANGATE_SCANNER_ACCEPT_UNTRUSTED_CERTS", "true")
	t.Setenv("SCANGATE_SCAN_TIMEOUT", "10m")
	t.Setenv("SCANGATE_SCANNER_MAX_RETRIES", "3")
	t.Setenv("SCANGATE_POLICY_HIGH_ENABLED", "true")
	t.Setenv("SCANGATE_POLICY_HIGH_MAX_COUNT", "5")
	t.Setenv("SCANGATE_POLICY_BLACKLIST_ENABLED", "true")
	t.Setenv("SCANGATE_POLICY_BLACKLIST_IDENTIFIERS", "CVE-2021-0001\n cve-2021-0002 \r\n\nCVE-2021-0003")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ScanTypeExternal, cfg.Scan.Type)
	assert.Equal(t, "library/alpine", cfg.Scan.Repository)
	assert.Equal(t, "3.18", cfg.Scan.Tag)
	assert.Equal(t, 10*time.Minute, cfg.Scan.Timeout)
	assert.Equal(t, time.Second, cfg.Scanner.AvailabilityInterval)
	assert.Equal(t, 3, cfg.Scanner.MaxRetries)
	assert.Equal(t, time.Second, cfg.Scanner.RetryDelay)
	assert.True(t, cfg.Scanner.AcceptUntrustedCerts)
	assert.Equal(t, "NeuVector scan report", cfg.Output.SummaryTitle)

	policy := cfg.PolicyRules()
	require.NotNil(t, policy.HighThreshold)
	assert.True(t, policy.HighThreshold.Enabled)
	assert.Equal(t, 5, policy.HighThreshold.MaxCount)
	assert.False(t, policy.MediumThreshold.Enabled)
	assert.Equal(t, 1, policy.MediumThreshold.MaxCount)
	assert.Equal(t, []string{"CVE-2021-0001", "cve-2021-0002", "CVE-2021-0003"}, policy.Blacklist.Identifiers)

	creds := cfg.Credentials()
	assert.Equal(t, "https://scanner.example.com:10443", creds.URL)
	assert.Equal(t, "admin", creds.Username)
	assert.True(t, creds.AcceptUntrustedCerts)

	req := cfg.ScanRequest()
	assert.Nil(t, req.Registry)
	assert.Equal(t, "library/alpine:3.18", req.Image())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scangate.yaml")
	content := `
scan:
  repository: myapp
  tag: "1.0"
  scan_layers: true
scanner:
  url: https://scanner.local
  username: admin
  password: secret
registry:
  url: https://registry.hub.docker.com/
  username: user
  password: pass
policy:
  medium:
    enabled: true
    max_count: 3
  blacklist:
    enabled: true
    identifiers:
      - CVE-1
      - CVE-2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	req := cfg.ScanRequest()
	require.NotNil(t, req.Registry)
	assert.Equal(t, "https://registry.hub.docker.com/", req.Registry.URL)
	assert.Equal(t, "user", req.Registry.Username)
	assert.True(t, req.ScanLayers)

	policy := cfg.PolicyRules()
	assert.True(t, policy.MediumThreshold.Enabled)
	assert.Equal(t, 3, policy.MediumThreshold.MaxCount)
	assert.Equal(t, []string{"CVE-1", "CVE-2"}, policy.Blacklist.Identifiers)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	licensePath := filepath.Join(t.TempDir(), "license.txt")
	require.NoError(t, os.WriteFile(licensePath, []byte("  license-key \n"), 0600))

	valid := func() *Config {
		c := &Config{}
		c.Scan.Type = ScanTypeExternal
		c.Scan.Repository = "myapp"
		c.Scan.Tag = "1.0"
		c.Scanner.URL = "https://scanner.local"
		c.Scanner.Username = "admin"
		c.Scanner.Password = "admin"
		c.Logging.Level = "info"
		c.Logging.Format = "text"
		return c
	}

	tests := []struct {
		name        string
		setupConfig func(*Config)
		wantErr     bool
		fields      []string
	}{
		{
			name:        "valid config",
			setupConfig: func(c *Config) {},
		},
		{
			name:        "unknown scan type",
			setupConfig: func(c *Config) { c.Scan.Type = "remote" },
			wantErr:     true,
			fields:      []string{"scan.type"},
		},
		{
			name: "missing required inputs",
			setupConfig: func(c *Config) {
				c.Scan.Repository = ""
				c.Scan.Tag = ""
			},
			wantErr: true,
			fields:  []string{"scan.repository", "scan.tag"},
		},
		{
			name: "missing scanner credentials",
			setupConfig: func(c *Config) {
				c.Scanner.URL = ""
				c.Scanner.Password = ""
			},
			wantErr: true,
			fields:  []string{"scanner.url", "scanner.password"},
		},
		{
			name:        "relative scanner URL",
			setupConfig: func(c *Config) { c.Scanner.URL = "scanner.local" },
			wantErr:     true,
			fields:      []string{"scanner.url"},
		},
		{
			name: "registry username without password",
			setupConfig: func(c *Config) {
				c.Registry.URL = "https://registry.local"
				c.Registry.Username = "user"
			},
			wantErr: true,
			fields:  []string{"registry"},
		},
		{
			name: "standalone without license",
			setupConfig: func(c *Config) {
				c.Scan.Type = ScanTypeStandalone
				c.Standalone.Image.Repository = "neuvector/scanner"
				c.Standalone.Image.Tag = "latest"
				c.Standalone.LicensePath = filepath.Join(t.TempDir(), "missing.txt")
			},
			wantErr: true,
			fields:  []string{"standalone.license_path"},
		},
		{
			name: "standalone with license",
			setupConfig: func(c *Config) {
				c.Scan.Type = ScanTypeStandalone
				c.Scanner.URL = ""
				c.Standalone.Image.Repository = "neuvector/scanner"
				c.Standalone.Image.Tag = "latest"
				c.Standalone.LicensePath = licensePath
			},
		},
		{
			name:        "negative retries",
			setupConfig: func(c *Config) { c.Scanner.MaxRetries = -1 },
			wantErr:     true,
			fields:      []string{"scanner.max_retries"},
		},
		{
			name:        "invalid log level",
			setupConfig: func(c *Config) { c.Logging.Level = "loud" },
			wantErr:     true,
			fields:      []string{"logging.level"},
		},
		{
			name:        "invalid log format",
			setupConfig: func(c *Config) { c.Logging.Format = "xml" },
			wantErr:     true,
			fields:      []string{"logging.format"},
		},
		{
			name: "negative threshold",
			setupConfig: func(c *Config) {
				c.Policy.High.Enabled = true
				c.Policy.High.MaxCount = -1
			},
			wantErr: true,
			fields:  []string{"policy.high.max_count"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.setupConfig(cfg)

			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			for _, field := range tt.fields {
				assert.True(t, cfgErr.HasField(field), "expected error for %s in %v", field, cfgErr.Errors)
			}
		})
	}
}

func TestReadLicense(t *testing.T) {
	licensePath := filepath.Join(t.TempDir(), "license.txt")
	require.NoError(t, os.WriteFile(licensePath, []byte("  license-key \n"), 0600))

	cfg := &Config{}
	cfg.Standalone.LicensePath = licensePath
	license, err := cfg.ReadLicense()
	require.NoError(t, err)
	assert.Equal(t, "license-key", license)

	cfg.Standalone.LicensePath = filepath.Join(t.TempDir(), "missing")
	_, err = cfg.ReadLicense()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEncryptedSecrets(t *testing.T) {
	encrypted, err := EncryptValue("passphrase", "s3cr3t")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encrypted, EncryptedPrefix))

	setupExternalEnv(t)
	t.Setenv("SCANGATE_SCANNER_PASSWORD", encrypted)
	t.Setenv("SCANGATE_SECURITY_ENCRYPTION_KEY", "passphrase")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.Scanner.Password)
}

func TestEncryptedSecretWithoutKey(t *testing.T) {
	encrypted, err := EncryptValue("passphrase", "s3cr3t")
	require.NoError(t, err)

	setupExternalEnv(t)
	t.Setenv("SCANGATE_SCANNER_PASSWORD", encrypted)

	_, err = Load(viper.New(), "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCipher(t *testing.T) {
	_, err := NewCipher("")
	assert.ErrorIs(t, err, ErrNoEncryptionKey)

	c, err := NewCipher("key")
	require.NoError(t, err)

	plain, err := c.Decrypt("not encrypted")
	require.NoError(t, err)
	assert.Equal(t, "not encrypted", plain)

	enc, err := c.Encrypt("value")
	require.NoError(t, err)
	again, err := c.Encrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, enc, again, "already encrypted values are left alone")

	other, err := NewCipher("other")
	require.NoError(t, err)
	_, err = other.Decrypt(enc)
	assert.Error(t, err)
}

func TestParseIdentifiers(t *testing.T) {
	assert.Equal(t, []string{}, ParseIdentifiers(nil))
	assert.Equal(t, []string{"A", "B", "C"}, ParseIdentifiers("A, B\nC\n"))
	assert.Equal(t, []string{"A", "B"}, ParseIdentifiers([]interface{}{"A", " ", "B"}))
	assert.Equal(t, []string{"A"}, ParseIdentifiers([]string{" A "}))
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Scanner.Password = "super-secret"
	cfg.Registry.Password = "registry-secret"
	cfg.Security.EncryptionKey = "key-material"
	cfg.Scanner.Username = "admin"

	out := cfg.String()
	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "registry-secret")
	assert.NotContains(t, out, "key-material")
	assert.Contains(t, out, "username: admin")
	assert.Contains(t, out, "********")

	assert.Equal(t, "super-secret", cfg.Scanner.Password, "masking works on a copy")
}
