package model

// ArticleStatus is the lifecycle of one NNTP segment fetch.
type ArticleStatus string

const (
	ArticlePending    ArticleStatus = "pending"
	ArticleRunning    ArticleStatus = "running"
	ArticleFinishedOK ArticleStatus = "finished-ok"
	ArticleFailed     ArticleStatus = "failed"
)

// StageStatus is the shared {none, skipped, success, failure, ...} shape
// used by every post-chain stage field named in spec §3/§4.5.
type StageStatus string

const (
	StageNone    StageStatus = "none"
	StageSkipped StageStatus = "skipped"
	StageRunning StageStatus = "running"
	StageSuccess StageStatus = "success"
	StageFailure StageStatus = "failure"
)

// UnpackStatus adds the two unpack-specific failure modes §4.5/§7 name.
type UnpackStatus string

const (
	UnpackNone     UnpackStatus = "none"
	UnpackSkipped  UnpackStatus = "skipped"
	UnpackSuccess  UnpackStatus = "success"
	UnpackFailure  UnpackStatus = "failure"
	UnpackPassword UnpackStatus = "password"
	UnpackSpace    UnpackStatus = "space"
)

// DeleteStatus records why a collection was removed, per §4.4's delete
// variants and §4.3's duplicate/health short-circuits.
type DeleteStatus string

const (
	DeleteNone   DeleteStatus = "none"
	DeleteManual DeleteStatus = "manual"
	DeleteDupe   DeleteStatus = "dupe"
	DeleteHealth DeleteStatus = "health"
	DeleteScan   DeleteStatus = "scan"
)

// MarkStatus is the user's good/bad annotation on a history entry (§4.4
// mark-good/mark-bad), independent of how it terminated.
type MarkStatus string

const (
	MarkNone MarkStatus = "none"
	MarkBad  MarkStatus = "bad"
	MarkGood MarkStatus = "good"
)

// CollectionStage is the post-processor state machine of spec §4.5.
type CollectionStage string

const (
	StageQueued             CollectionStage = "QUEUED"
	StageLoadingPars        CollectionStage = "LOADING_PARS"
	StageVerifyingSources   CollectionStage = "VERIFYING_SOURCES"
	StageRepairing          CollectionStage = "REPAIRING"
	StageVerifyingRepaired  CollectionStage = "VERIFYING_REPAIRED"
	StageRenaming           CollectionStage = "RENAMING"
	StageUnpacking          CollectionStage = "UNPACKING"
	StageMoving             CollectionStage = "MOVING"
	StageExecutingScript    CollectionStage = "EXECUTING_SCRIPT"
	StageFinished           CollectionStage = "FINISHED"
)

// DupeMode controls how add_nzb's duplicate-dominance check is applied
// (§4.3 "Duplicate handling").
type DupeMode string

const (
	DupeModeScore DupeMode = "score"
	DupeModeAll   DupeMode = "all"
	DupeModeForce DupeMode = "force"
)

// ConnectionOutcome is the release() discriminant C1's contract names
// (§4.1).
type ConnectionOutcome int

const (
	OutcomeOK ConnectionOutcome = iota
	OutcomeTransientError
	OutcomeAuthOrFatal
)
