package backup

import (
	"context"
	"path/filepath"
	"time"

	"mysql-dump-manager/internal/logging"
)

// RetentionResult reports what a retention pass removed or would remove
type RetentionResult struct {
	Keep           int           `json:"keep" yaml:"keep"`
	TotalProcessed int           `json:"total_processed" yaml:"total_processed"`
	Candidates     []*Artifact   `json:"candidates" yaml:"candidates"`
	Deleted        int           `json:"deleted" yaml:"deleted"`
	Errors         []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
	ProcessingTime time.Duration `json:"processing_time" yaml:"processing_time"`
	DryRun         bool          `json:"dry_run" yaml:"dry_run"`
}

// RetentionManager applies the keep-last-N policy on demand and finds
// artifact files that no catalog row references
type RetentionManager struct {
	catalog ArtifactCatalog
	store   *FileStore
	keep    int
	logger  *logging.Logger
}

// NewRetentionManager creates a retention manager keeping keep artifacts
func NewRetentionManager(catalog ArtifactCatalog, store *FileStore, keep int, logger *logging.Logger) *RetentionManager {
	if keep < 1 {
		keep = DefaultRetention
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &RetentionManager{catalog: catalog, store: store, keep: keep, logger: logger}
}

// Keep returns the number of artifacts the policy keeps
func (rm *RetentionManager) Keep() int {
	return rm.keep
}

// Candidates returns the artifacts the policy would delete, oldest last
func (rm *RetentionManager) Candidates(ctx context.Context) ([]*Artifact, int, error) {
	artifacts, err := rm.catalog.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(artifacts) <= rm.keep {
		return nil, len(artifacts), nil
	}
	return artifacts[rm.keep:], len(artifacts), nil
}

// Apply deletes the candidates, or only reports them when dryRun is set
func (rm *RetentionManager) Apply(ctx context.Context, dryRun bool) (*RetentionResult, error) {
	start := time.Now()

	candidates, total, err := rm.Candidates(ctx)
	if err != nil {
		return nil, err
	}

	result := &RetentionResult{
		Keep:           rm.keep,
		TotalProcessed: total,
		Candidates:     candidates,
		DryRun:         dryRun,
	}

	if !dryRun && len(candidates) > 0 {
		deleted, err := rm.catalog.Retain(ctx, rm.keep)
		result.Deleted = deleted
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			rm.logger.WithFields(map[string]interface{}{
				"keep":  rm.keep,
				"error": err.Error(),
			}).Warn("Retention completed with errors")
		}
	}

	result.ProcessingTime = time.Since(start)
	return result, nil
}

// Orphans lists files in the backup directory without a catalog row
func (rm *RetentionManager) Orphans(ctx context.Context) ([]string, error) {
	if rm.store == nil {
		return nil, nil
	}

	artifacts, err := rm.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		known[filepath.Clean(a.Filepath)] = true
	}

	files, err := rm.store.Files()
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, f := range files {
		if !known[filepath.Clean(f)] {
			orphans = append(orphans, f)
		}
	}
	return orphans, nil
}
