package client

// This file defines a shared mock implementation of the scanning service API.

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/threatflux/scangate/internal/models"
)

// MockScannerAPI is a shared mock implementation of ScannerAPI
type MockScannerAPI struct {
	mock.Mock
}

// Ensure MockScannerAPI implements ScannerAPI (compile-time check)
var _ ScannerAPI = (*MockScannerAPI)(nil)

func (m *MockScannerAPI) Authenticate(ctx context.Context, username, password string) (*AuthResponse, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AuthResponse), args.Error(1)
}

func (m *MockScannerAPI) ScanRepository(ctx context.Context, registry models.RegistryAuth, repository, tag string, scanLayers bool) (*models.VulnerabilityReport, error) {
	args := m.Called(ctx, registry, repository, tag, scanLayers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VulnerabilityReport), args.Error(1)
}

func (m *MockScannerAPI) ScanLocalRepository(ctx context.Context, repository, tag string, scanLayers bool) (*models.VulnerabilityReport, error) {
	args := m.Called(ctx, repository, tag, scanLayers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VulnerabilityReport), args.Error(1)
}

func (m *MockScannerAPI) Deauthenticate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockScannerAPI) CheckAvailable(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}
