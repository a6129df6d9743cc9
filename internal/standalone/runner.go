package standalone

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/scangate/internal/models"
)

const (
	// ResultFile is written by the scanner into its mount directory
	ResultFile = "scan_result.json"

	// ContainerMountPath is where the scanner expects its working directory
	ContainerMountPath = "/var/neuvector"

	dockerSocket = "/var/run/docker.sock"
)

var (
	// ErrInvalidOptions indicates incomplete runner options
	ErrInvalidOptions = errors.New("invalid standalone scan options")

	// ErrNoResult indicates the scanner exited without a usable result file
	ErrNoResult = errors.New("scanner did not produce a scan result")

	// ErrResultMismatch indicates the result file describes another image
	ErrResultMismatch = errors.New("scan result does not match the requested image")

	schemePattern = regexp.MustCompile(`(?i)^https?://`)
)

// Options describes one standalone scan
type Options struct {
	// ScannerRepository and ScannerTag name the scanner image
	ScannerRepository string
	ScannerTag        string

	// ScannerRegistry is the registry the scanner image is pulled from; empty means the default registry
	ScannerRegistry models.RegistryAuth

	// Target is the image to scan
	Target models.ScanRequest

	// License is passed to the scanner
	License string

	// MountPath is the host directory shared with the scanner
	MountPath string

	// Platform selects the scanner image platform, e.g. linux/amd64
	Platform string
}

// Runner pulls and runs the scanner container and reads back its report
type Runner struct {
	docker DockerAPI
	logger *logrus.Logger
}

// NewRunner creates a runner using the given Docker API
func NewRunner(docker DockerAPI, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{docker: docker, logger: logger}
}

// Run executes the scanner container and returns the report it wrote
func (r *Runner) Run(ctx context.Context, opts Options) (*models.VulnerabilityReport, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	scannerImage, err := ScannerImage(opts.ScannerRegistry.URL, opts.ScannerRepository, opts.ScannerTag)
	if err != nil {
		return nil, err
	}

	platform, err := ParsePlatform(opts.Platform)
	if err != nil {
		return nil, err
	}

	logger := r.logger.WithFields(logrus.Fields{
		"scanner_image": scannerImage,
		"image":         opts.Target.Image(),
	})

	if err := r.pull(ctx, scannerImage, opts); err != nil {
		return nil, err
	}

	resultPath := filepath.Join(opts.MountPath, ResultFile)
	if err := clearResult(resultPath); err != nil {
		return nil, err
	}

	name := "neuvector-scanner-" + uuid.New().String()
	resp, err := r.docker.ContainerCreate(ctx,
		&container.Config{
			Image: scannerImage,
			Env:   scannerEnv(opts),
		},
		&container.HostConfig{
			Binds: []string{
				dockerSocket + ":" + dockerSocket,
				opts.MountPath + ":" + ContainerMountPath,
			},
		},
		nil,
		platform,
		name,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create scanner container")
	}
	defer r.remove(resp.ID)

	logger = logger.WithField("container", name)
	logger.Info("Starting standalone scanner")

	if err := r.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, errors.Wrap(err, "failed to start scanner container")
	}

	logsDone := r.streamLogs(ctx, resp.ID)
	exitCode, err := r.wait(ctx, resp.ID)
	<-logsDone
	if err != nil {
		return nil, err
	}

	if exitCode != 0 {
		logger.WithField("exit_code", exitCode).Warn("Scanner exited with a non-zero status")
	}

	report, err := ReadResult(resultPath)
	if err != nil {
		return nil, errors.Wrapf(err, "scanner exited with status %d", exitCode)
	}
	if err := matchTarget(report, opts.Target); err != nil {
		return nil, err
	}

	logger.WithField("vulnerability_count", len(report.Vulnerabilities)).Info("Standalone scan finished")
	return report, nil
}

// clearResult removes a result left behind by an earlier scan in the same mount
func clearResult(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove previous scan result")
	}
	return nil
}

// matchTarget rejects a report written for a different repository or tag
func matchTarget(report *models.VulnerabilityReport, target models.ScanRequest) error {
	if report.Tag != target.Tag || !sameRepository(report.Repository, target.Repository) {
		return fmt.Errorf("%w: requested %s, got %s", ErrResultMismatch, target.Image(), report.Image())
	}
	return nil
}

// sameRepository compares repositories by their normalized name, so
// "alpine" and "library/alpine" are equal
func sameRepository(a, b string) bool {
	if a == b {
		return true
	}
	na, errA := reference.ParseNormalizedNamed(a)
	nb, errB := reference.ParseNormalizedNamed(b)
	if errA != nil || errB != nil {
		return false
	}
	return na.Name() == nb.Name()
}

func (r *Runner) pull(ctx context.Context, ref string, opts Options) error {
	var auth string
	if opts.ScannerRegistry.Username != "" {
		var err error
		auth, err = registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      opts.ScannerRegistry.Username,
			Password:      opts.ScannerRegistry.Password,
			ServerAddress: registryHost(opts.ScannerRegistry.URL),
		})
		if err != nil {
			return errors.Wrap(err, "failed to encode registry credentials")
		}
	}

	r.logger.WithField("image", ref).Info("Pulling scanner image")

	body, err := r.docker.ImagePull(ctx, ref, image.PullOptions{
		RegistryAuth: auth,
		Platform:     opts.Platform,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to pull scanner image %s", ref)
	}
	defer body.Close()

	out := r.logger.WriterLevel(logrus.DebugLevel)
	defer out.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(body, out, 0, false, nil); err != nil {
		return errors.Wrapf(err, "failed to pull scanner image %s", ref)
	}
	return nil
}

// streamLogs copies the scanner output to the logger until the container stops
func (r *Runner) streamLogs(ctx context.Context, id string) <-chan struct{} {
	done := make(chan struct{})

	logs, err := r.docker.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		r.logger.WithError(err).Warn("Failed to attach to scanner logs")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer logs.Close()

		stdout := r.logger.WriterLevel(logrus.InfoLevel)
		stderr := r.logger.WriterLevel(logrus.WarnLevel)
		defer stdout.Close()
		defer stderr.Close()

		if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Debug("Scanner log stream ended")
		}
	}()
	return done
}

func (r *Runner) wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := r.docker.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, errors.Errorf("scanner container failed: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case err := <-errCh:
		return -1, errors.Wrap(err, "failed waiting for scanner container")
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (r *Runner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		r.logger.WithError(err).WithField("container", id).Warn("Failed to remove scanner container")
	}
}

func (o Options) validate() error {
	var missing []string
	if o.ScannerRepository == "" {
		missing = append(missing, "scanner repository")
	}
	if o.ScannerTag == "" {
		missing = append(missing, "scanner tag")
	}
	if o.Target.Repository == "" || o.Target.Tag == "" {
		missing = append(missing, "target image")
	}
	if o.License == "" {
		missing = append(missing, "license")
	}
	if o.MountPath == "" {
		missing = append(missing, "mount path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidOptions, strings.Join(missing, ", "))
	}
	return nil
}

func scannerEnv(opts Options) []string {
	env := []string{
		"SCANNER_REPOSITORY=" + opts.Target.Repository,
		"SCANNER_TAG=" + opts.Target.Tag,
		"SCANNER_LICENSE=" + opts.License,
	}
	if reg := opts.Target.Registry; reg != nil {
		if reg.URL != "" {
			env = append(env, "SCANNER_REGISTRY="+reg.URL)
		}
		if reg.Username != "" {
			env = append(env, "SCANNER_REGISTRY_USERNAME="+reg.Username)
		}
		if reg.Password != "" {
			env = append(env, "SCANNER_REGISTRY_PASSWORD="+reg.Password)
		}
	}
	if opts.Target.ScanLayers {
		env = append(env, "SCANNER_SCAN_LAYERS=true")
	}
	return env
}

// registryHost strips the scheme and path of a registry URL
func registryHost(registryURL string) string {
	host := schemePattern.ReplaceAllString(strings.TrimSpace(registryURL), "")
	return strings.SplitN(host, "/", 2)[0]
}

// ScannerImage builds the normalized reference of the scanner image
func ScannerImage(registryURL, repository, tag string) (string, error) {
	ref := repository + ":" + tag
	if host := registryHost(registryURL); host != "" {
		ref = host + "/" + ref
	}

	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", fmt.Errorf("%w: invalid scanner image %q: %v", ErrInvalidOptions, ref, err)
	}
	return reference.TagNameOnly(named).String(), nil
}

// ParsePlatform parses os/arch[/variant]; an empty string selects the daemon default
func ParsePlatform(value string) (*ocispec.Platform, error) {
	if value == "" {
		return nil, nil
	}

	parts := strings.Split(value, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: invalid platform %q", ErrInvalidOptions, value)
	}

	platform := &ocispec.Platform{OS: parts[0], Architecture: parts[1]}
	if len(parts) == 3 {
		platform.Variant = parts[2]
	}
	return platform, nil
}

type resultFile struct {
	Report *models.VulnerabilityReport `json:"report"`
}

// ReadResult reads the report the scanner wrote to path
func ReadResult(path string) (*models.VulnerabilityReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(ErrNoResult, err.Error())
	}

	var result resultFile
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	if result.Report == nil {
		return nil, errors.Wrapf(ErrNoResult, "%s has no report", path)
	}
	return result.Report, nil
}
