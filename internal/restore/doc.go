// Package restore replays dump artifacts into the live database.
//
// A restore runs as a pipeline: the artifact is resolved and decompressed,
// decoded to text, split into statements, corrected for column drift against
// the live schema and rewritten into idempotent upserts. Replay happens on a
// single connection inside one transaction with foreign key checks off. When
// the replay fails the engine retries without the data of the implicated
// tables, then with structure only, before giving up.
package restore
