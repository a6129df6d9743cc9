package ci

import (
	"fmt"
	"os"
	"path/filepath"
)

// Variables of the pipeline host
const (
	VarTFBuild                  = "TF_BUILD"
	VarArtifactStagingDirectory = "BUILD_ARTIFACTSTAGINGDIRECTORY"
	VarPipelineWorkspace        = "PIPELINE_WORKSPACE"
)

// StagingSubdirectory holds the scan summaries inside the artifact staging directory
const StagingSubdirectory = ".neuvector"

// Host exposes the directories of the pipeline running the scan
type Host struct {
	env *EnvProvider
}

// NewHost creates a host reading variables through env
func NewHost(env *EnvProvider) *Host {
	return &Host{env: env}
}

// Detected reports whether the process runs inside a pipeline
func (h *Host) Detected() bool {
	return h.env.GetBool(VarTFBuild, false) || h.env.IsSet(VarArtifactStagingDirectory)
}

// StagingDirectory returns <artifact staging directory>/.neuvector, creating it on demand
func (h *Host) StagingDirectory() (string, error) {
	base, err := h.env.Require(VarArtifactStagingDirectory)
	if err != nil {
		return "", fmt.Errorf("failed to determine artifact staging directory: %w", err)
	}

	dir := filepath.Join(base, StagingSubdirectory)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}
	return dir, nil
}

// Workspace returns the pipeline workspace, the default mount of the standalone scanner
func (h *Host) Workspace() (string, error) {
	return h.env.Require(VarPipelineWorkspace)
}
