package backup

import (
	"context"
	"fmt"
	"strings"
)

// ArtifactMirror keeps an offsite copy of artifact files. Mirror failures are
// logged by callers and never fail the primary operation.
type ArtifactMirror interface {
	Name() string
	Upload(ctx context.Context, localPath, name string) (string, error)
	Delete(ctx context.Context, name string) error
}

// NewArtifactMirror creates the mirror selected by config, or nil when
// mirroring is disabled
func NewArtifactMirror(ctx context.Context, config MirrorConfig) (ArtifactMirror, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid mirror configuration", err)
	}

	switch config.Provider {
	case MirrorProviderNone:
		return nil, nil
	case MirrorProviderS3:
		return NewS3Mirror(config.S3, config.Prefix)
	case MirrorProviderAzure:
		return NewAzureMirror(config.Azure, config.Prefix)
	case MirrorProviderGCS:
		return NewGCSMirror(ctx, config.GCS, config.Prefix)
	}
	return nil, NewValidationError(fmt.Sprintf("unsupported mirror provider: %s", config.Provider), nil)
}

// SupportedMirrorProviders lists the accepted mirror.provider values
func SupportedMirrorProviders() []MirrorProviderType {
	return []MirrorProviderType{MirrorProviderNone, MirrorProviderS3, MirrorProviderAzure, MirrorProviderGCS}
}

func mirrorKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

func contentTypeFor(name string) string {
	return (&Artifact{Filename: name}).ContentType()
}
