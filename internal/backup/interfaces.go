package backup

import (
	"context"
)

// SchemaSource lists tables and their DDL for the dump writer
type SchemaSource interface {
	ListTables(ctx context.Context) ([]string, error)
	TableDefinition(ctx context.Context, table string) (string, error)
}

// TableSerializer streams a table's rows as INSERT statements
type TableSerializer interface {
	SerializeTable(ctx context.Context, table string, emit func(stmt string) error) error
}

// ArtifactCatalog records artifact metadata and owns artifact lifecycle
type ArtifactCatalog interface {
	Create(ctx context.Context, artifact *Artifact) (int64, error)
	List(ctx context.Context) ([]*Artifact, error)
	Get(ctx context.Context, id int64) (*Artifact, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Retain(ctx context.Context, keep int) (int, error)
	Stats(ctx context.Context) (*CatalogStats, error)
}

// Dumper produces registered dump artifacts
type Dumper interface {
	Dump(ctx context.Context, req DumpRequest) (*Artifact, error)
}
