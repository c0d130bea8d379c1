package editor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nzbcore/nzbcore/internal/model"
)

// HistoryStore is the slice of the State Persistor (component C6) the
// editor needs for history-scope actions (spec §4.4 "History actions").
// It is implemented by internal/persist; kept as an interface here so
// this package can be built and tested before persist exists.
type HistoryStore interface {
	Delete(id string, final bool) error
	SetMark(id string, mark model.MarkStatus) error
	SetParam(id, name, value string) error
	SetDupeKey(id, key string) error
	SetDupeScore(id string, score int) error
	SetDupeMode(id string, mode model.DupeMode) error
	SetDupeBackup(id string, backup bool) error
	// ReturnToQueue and Redownload hand back a freshly queueable
	// Collection built from the history record (spec §4.4: re-adds it to
	// the live queue at QUEUED, either keeping already-downloaded bytes
	// or starting over).
	ReturnToQueue(id string) (*model.Collection, error)
	Redownload(id string) (*model.Collection, error)
	// Reprocess re-enters post-processing from LOADING_PARS without
	// redownloading anything (spec §4.4 history "re-process").
	Reprocess(id string) error
}

func (e *Editor) editHistory(ids []string, action Action, text string) (bool, error) {
	if e.history == nil {
		return false, fmt.Errorf("editor: history store not wired")
	}

	acted := false
	for _, id := range ids {
		if err := e.editOneHistoryEntry(id, action, text); err != nil {
			continue
		}
		acted = true
	}
	return acted, nil
}

func (e *Editor) editOneHistoryEntry(id string, action Action, text string) error {
	switch action {
	case ActionHistoryDelete:
		return e.history.Delete(id, false)
	case ActionHistoryFinalDelete:
		return e.history.Delete(id, true)
	case ActionHistoryMarkBad:
		return e.history.SetMark(id, model.MarkBad)
	case ActionHistoryMarkGood:
		return e.history.SetMark(id, model.MarkGood)
	case ActionHistoryReturnToQueue:
		return e.requeueFromHistory(id, e.history.ReturnToQueue)
	case ActionHistoryRedownload:
		return e.requeueFromHistory(id, e.history.Redownload)
	case ActionHistoryReprocess:
		return e.history.Reprocess(id)
	case ActionHistorySetParameter:
		name, value, ok := strings.Cut(text, "=")
		if !ok {
			return fmt.Errorf("editor: set-parameter expects name=value, got %q", text)
		}
		return e.history.SetParam(id, name, value)
	case ActionHistorySetDupeKey:
		return e.history.SetDupeKey(id, text)
	case ActionHistorySetDupeScore:
		score, err := strconv.Atoi(text)
		if err != nil {
			return fmt.Errorf("editor: invalid dupe score %q: %w", text, err)
		}
		return e.history.SetDupeScore(id, score)
	case ActionHistorySetDupeMode:
		mode, err := parseDupeMode(text)
		if err != nil {
			return err
		}
		return e.history.SetDupeMode(id, mode)
	case ActionHistorySetDupeBackup:
		backup, err := strconv.ParseBool(text)
		if err != nil {
			return fmt.Errorf("editor: invalid dupe-backup %q: %w", text, err)
		}
		return e.history.SetDupeBackup(id, backup)
	default:
		return fmt.Errorf("editor: unhandled history action %d", action)
	}
}

func (e *Editor) requeueFromHistory(id string, build func(string) (*model.Collection, error)) error {
	col, err := build(id)
	if err != nil {
		return err
	}
	if col == nil {
		return fmt.Errorf("editor: history entry %s produced no collection", id)
	}
	e.queue.Lock()
	e.queue.InsertLocked(col)
	e.queue.Unlock()
	return nil
}
