package restore

import (
	"time"
)

// Outcome is how far a restore got
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeStructureOnly  Outcome = "structure_only"
	OutcomeFailed         Outcome = "failed"
)

// FallbackLevel names the rung of the fallback ladder that produced the outcome
type FallbackLevel string

const (
	FallbackNone          FallbackLevel = ""
	FallbackSkipData      FallbackLevel = "skip_implicated_data"
	FallbackStructureOnly FallbackLevel = "structure_only"
	FallbackExhausted     FallbackLevel = "exhausted"
)

// Stage names of the restore pipeline
const (
	StageResolve    = "resolve"
	StageDecompress = "decompress"
	StageDecode     = "decode"
	StageSplit      = "split"
	StageDrift      = "drift"
	StageRepair     = "repair"
	StageSafetyDump = "safety_dump"
	StageReplay     = "replay"
	StageFallback   = "fallback"
	StageVerify     = "verify"
)

// StageRecord is one step of the pipeline as it ran
type StageRecord struct {
	Stage    string        `json:"stage" yaml:"stage"`
	Detail   string        `json:"detail" yaml:"detail"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// RowCount is a table's size before and after the replay. Nil means the
// count could not be taken.
type RowCount struct {
	Before *int64 `json:"before" yaml:"before"`
	After  *int64 `json:"after" yaml:"after"`
}

// Added returns after minus before when both counts are known
func (c RowCount) Added() *int64 {
	if c.Before == nil || c.After == nil {
		return nil
	}
	added := *c.After - *c.Before
	return &added
}

// Diagnostics is everything the pipeline learned about one restore
type Diagnostics struct {
	ArtifactID       int64               `json:"artifact_id" yaml:"artifact_id"`
	Filename         string              `json:"filename" yaml:"filename"`
	Compression      string              `json:"compression,omitempty" yaml:"compression,omitempty"`
	Encoding         string              `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Statements       int                 `json:"statements" yaml:"statements"`
	Executed         int                 `json:"executed" yaml:"executed"`
	Stages           []StageRecord       `json:"stages" yaml:"stages"`
	Repairs          []string            `json:"repairs,omitempty" yaml:"repairs,omitempty"`
	Drift            *DriftReport        `json:"drift,omitempty" yaml:"drift,omitempty"`
	Warnings         []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	RowCounts        map[string]RowCount `json:"row_counts,omitempty" yaml:"row_counts,omitempty"`
	MigrationBefore  string              `json:"migration_version_before,omitempty" yaml:"migration_version_before,omitempty"`
	MigrationAfter   string              `json:"migration_version_after,omitempty" yaml:"migration_version_after,omitempty"`
	SafetyArtifactID *int64              `json:"safety_artifact_id,omitempty" yaml:"safety_artifact_id,omitempty"`
	Fallback         FallbackLevel       `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	ImplicatedTables []string            `json:"implicated_tables,omitempty" yaml:"implicated_tables,omitempty"`
	ReplayErrors     []string            `json:"replay_errors,omitempty" yaml:"replay_errors,omitempty"`
	Duration         time.Duration       `json:"duration" yaml:"duration"`
}

// Result is the structured outcome of a restore
type Result struct {
	Success     bool         `json:"success" yaml:"success"`
	Outcome     Outcome      `json:"outcome" yaml:"outcome"`
	Message     string       `json:"message" yaml:"message"`
	Diagnostics *Diagnostics `json:"diagnostics" yaml:"diagnostics"`
}

func (d *Diagnostics) stage(name, detail string, started time.Time) {
	d.Stages = append(d.Stages, StageRecord{Stage: name, Detail: detail, Duration: time.Since(started)})
}

func (d *Diagnostics) warn(msg string) {
	d.Warnings = append(d.Warnings, msg)
}
