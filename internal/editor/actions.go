// Package editor implements the Queue Editor (spec §4.4, component C4):
// a stateless set of actions applied, under the coordinator's own queue
// guard, to files, groups (collections), the post-processing queue and
// history. The action enumeration and matching modes are grounded on
// original_source's QueueEditor.h (EEditAction/EMatchMode), extended with
// the post-processing-queue and history actions the distilled spec adds
// that the teacher (and the bare file/group editor above) never covered.
package editor

// Action is one edit operation. The first block (file-scope) and second
// block (group-scope) preserve QueueEditor.h's original ordering; the
// post-queue/history block is this module's extension.
type Action int

const (
	// File-scope actions (spec §4.4 "File-level actions").
	ActionFileMoveOffset Action = iota
	ActionFileMoveTop
	ActionFileMoveBottom
	ActionFilePause
	ActionFileResume
	ActionFileDelete
	ActionFilePauseAllPars
	ActionFilePauseExtraPars
	ActionFileReorder
	ActionFileSplit

	// Group-scope actions (spec §4.4 "Group-level actions"); a group is
	// one Collection.
	ActionGroupMoveOffset
	ActionGroupMoveTop
	ActionGroupMoveBottom
	ActionGroupPause
	ActionGroupResume
	ActionGroupDelete
	ActionGroupDupeDelete
	ActionGroupFinalDelete
	ActionGroupPauseAllPars
	ActionGroupPauseExtraPars
	ActionGroupSetPriority
	ActionGroupSetCategory
	ActionGroupMerge
	ActionGroupSetPostParameter
	ActionGroupSetName
	ActionGroupSetDupeKey
	ActionGroupSetDupeScore
	ActionGroupSetDupeMode
	ActionGroupSortFiles
	ActionGroupMarkDupe

	// Post-processing-queue actions (spec §4.4).
	ActionPostQueueDelete

	// History actions (spec §4.4 "History actions").
	ActionHistoryDelete
	ActionHistoryFinalDelete
	ActionHistoryReturnToQueue
	ActionHistoryReprocess
	ActionHistoryRedownload
	ActionHistorySetParameter
	ActionHistorySetDupeKey
	ActionHistorySetDupeScore
	ActionHistorySetDupeMode
	ActionHistorySetDupeBackup
	ActionHistoryMarkBad
	ActionHistoryMarkGood
)

// MatchMode selects how the caller's selector strings are resolved to
// concrete targets (QueueEditor.h's EMatchMode).
type MatchMode int

const (
	MatchID MatchMode = iota
	MatchName
	MatchRegex
)

// scope classifies an action so EditList can route it to the right
// resolver/handler.
type scope int

const (
	scopeFile scope = iota
	scopeGroup
	scopePostQueue
	scopeHistory
)

func (a Action) scope() scope {
	switch {
	case a <= ActionFileSplit:
		return scopeFile
	case a <= ActionGroupMarkDupe:
		return scopeGroup
	case a == ActionPostQueueDelete:
		return scopePostQueue
	default:
		return scopeHistory
	}
}
