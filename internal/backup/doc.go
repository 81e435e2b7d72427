// Package backup produces, stores and catalogs logical MySQL dumps.
//
// A dump is a plain SQL script written by the Writer: a header, one structure
// and one data section per table, and a closing pragma. The Serializer turns
// rows into batched multi-row INSERT statements. Finished scripts are
// compressed (gzip by default, zstd and lz4 optional), registered in the
// Catalog, which is a `backups` table in the dumped database, and optionally
// mirrored to S3, Azure Blob Storage or Google Cloud Storage.
//
// Foreign dumps enter through the Importer, which stores the file and guesses
// its type and tables from the first few kilobytes of the script.
//
//	writer := backup.NewWriter(introspector, serializer, store, catalog, options, logger)
//	artifact, err := writer.Dump(ctx, backup.DumpRequest{Tables: []string{"users"}})
//	if err != nil {
//		return fmt.Errorf("dump failed: %w", err)
//	}
package backup
