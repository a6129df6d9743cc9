package cli

import (
	"bytes"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatflux/scangate/internal/config"
	"github.com/threatflux/scangate/internal/policy"
	"github.com/threatflux/scangate/internal/simulator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand(quietLogger(), BuildInfo{Version: "1.2.3", Commit: "abc", BuildDate: "today"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "scangate 1.2.3 (abc) built on today\n", out)
}

func TestSecretEncrypt(t *testing.T) {
	out, err := execute(t, "", "secret", "encrypt", "--key", "passphrase", "s3cr3t")
	require.NoError(t, err)

	encrypted := strings.TrimSpace(out)
	require.True(t, config.IsEncrypted(encrypted))

	c, err := config.NewCipher("passphrase")
	require.NoError(t, err)
	plain, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", plain)
}

func TestSecretEncryptFromStdin(t *testing.T) {
	t.Setenv("SCANGATE_SECURITY_ENCRYPTION_KEY", "passphrase")

	out, err := execute(t, "from-stdin\n", "secret", "encrypt")
	require.NoError(t, err)
	assert.True(t, config.IsEncrypted(strings.TrimSpace(out)))
}

func TestSecretEncryptWithoutKey(t *testing.T) {
	t.Setenv("SCANGATE_SECURITY_ENCRYPTION_KEY", "")

	_, err := execute(t, "", "secret", "encrypt", "value")
	assert.ErrorIs(t, err, config.ErrNoEncryptionKey)
}

func startSimulator(t *testing.T) string {
	t.Helper()

	cfg := simulator.NewTestConfig()
	cfg.NotModifiedResponses = 1
	sim, err := simulator.NewServer(cfg, quietLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(sim.Router())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestScanCommandPasses(t *testing.T) {
	url := startSimulator(t)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "report.json")

	out, err := execute(t, "", "scan",
		"--repository", "library/alpine",
		"--tag", "latest",
		"--scanner-url", url,
		"--scanner-username", "admin",
		"--scanner-password", "admin",
		"--high-threshold", "5",
		"--fail-on-high",
		"--json-output", jsonPath,
	)
	require.NoError(t, err)
	assert.Equal(t, "Scan of library/alpine:latest passed (2 vulnerabilities)\n", out)
	assert.FileExists(t, jsonPath)
}

func TestScanCommandFailsOnPolicy(t *testing.T) {
	url := startSimulator(t)

	_, err := execute(t, "", "scan",
		"--repository", "library/alpine",
		"--scanner-url", url,
		"--scanner-username", "admin",
		"--scanner-password", "admin",
		"--fail-on-blacklist",
		"--blacklist", "cve-2023-5678,CVE-2000-0001",
	)
	require.Error(t, err)

	var violation *policy.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, []string{"Failed because the blacklisted CVE CVE-2023-5678 has been detected"}, violation.Reasons)
}

func TestScanCommandRejectsIncompleteConfig(t *testing.T) {
	_, err := execute(t, "", "scan", "--repository", "library/alpine")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestConfigureLogger(t *testing.T) {
	logger := logrus.New()

	require.NoError(t, ConfigureLogger(logger, "debug", "json"))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	require.NoError(t, ConfigureLogger(logger, "", "text"))
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	assert.Error(t, ConfigureLogger(logger, "loud", "text"))
	assert.Error(t, ConfigureLogger(logger, "info", "xml"))
}
