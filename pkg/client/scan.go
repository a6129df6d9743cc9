package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/threatflux/scangate/internal/models"
)

// ScanRepositoryRequest is the body of a scan request. Registry fields are
// omitted for images already present on the scanning host.
type ScanRepositoryRequest struct {
	Registry   string `json:"registry,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
	ScanLayers bool   `json:"scan_layers,omitempty"`
}

type scanRepositoryEnvelope struct {
	Request ScanRepositoryRequest `json:"request"`
}

type scanRepositoryResponse struct {
	Report *models.VulnerabilityReport `json:"report"`
}

// ScanRepository scans an image held in an external registry. Username and
// password may be empty for public registries.
func (c *APIClient) ScanRepository(ctx context.Context, registry models.RegistryAuth, repository, tag string, scanLayers bool) (*models.VulnerabilityReport, error) {
	if registry.URL == "" {
		return nil, fmt.Errorf("registry URL cannot be empty")
	}
	return c.scan(ctx, ScanRepositoryRequest{
		Registry:   registry.URL,
		Username:   registry.Username,
		Password:   registry.Password,
		Repository: repository,
		Tag:        tag,
		ScanLayers: scanLayers,
	})
}

// ScanLocalRepository scans an image already present on the scanning host
func (c *APIClient) ScanLocalRepository(ctx context.Context, repository, tag string, scanLayers bool) (*models.VulnerabilityReport, error) {
	return c.scan(ctx, ScanRepositoryRequest{
		Repository: repository,
		Tag:        tag,
		ScanLayers: scanLayers,
	})
}

func (c *APIClient) scan(ctx context.Context, req ScanRepositoryRequest) (*models.VulnerabilityReport, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	if req.Repository == "" {
		return nil, fmt.Errorf("repository cannot be empty")
	}
	if req.Tag == "" {
		return nil, fmt.Errorf("tag cannot be empty")
	}

	var resp scanRepositoryResponse
	if err := c.doRequest(ctx, http.MethodPost, APIPathScanRepository, true, scanRepositoryEnvelope{Request: req}, &resp); err != nil {
		return nil, err
	}

	if resp.Report == nil {
		// A 2xx without report still counts as a finished scan with no findings.
		return &models.VulnerabilityReport{
			Registry:   req.Registry,
			Repository: req.Repository,
			Tag:        req.Tag,
		}, nil
	}
	return resp.Report, nil
}
