package editor

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/queue"
)

// Editor is the C4 Queue Editor: every method takes the coordinator's
// queue guard for exactly as long as the edit requires, so a multi-step
// action (merge, split, group delete cascading into its files) is
// atomic with respect to the scheduler (spec §4.4).
type Editor struct {
	queue      *queue.Coordinator
	history    HistoryStore
	categories map[string]model.Category
}

func New(q *queue.Coordinator, history HistoryStore, categories map[string]model.Category) *Editor {
	return &Editor{queue: q, history: history, categories: categories}
}

// EditList is the single entry point spec §4.4 names: ids selects targets
// (interpreted per matchMode), action is what to do, offset/text carry
// the action's parameter (a move distance, a new name, a parameter
// string — whichever action needs). Grounded on original_source's
// QueueEditor::EditList / EditGroup dispatch.
func (e *Editor) EditList(ids []string, matchMode MatchMode, action Action, offset int, text string) (bool, error) {
	switch action.scope() {
	case scopeFile:
		return e.editFiles(ids, matchMode, action, offset, text)
	case scopeGroup:
		return e.editGroups(ids, matchMode, action, offset, text)
	case scopePostQueue:
		return e.editPostQueue(ids, action)
	case scopeHistory:
		return e.editHistory(ids, action, text)
	default:
		return false, fmt.Errorf("editor: unknown action %d", action)
	}
}

// resolveFileIDsLocked turns the selector into global file ids, resolving
// MatchName/MatchRegex against each candidate file's Filename (the
// subject line is not consulted) — original_source's
// BuildIDListFromNameList does the equivalent name/regex match.
func (e *Editor) resolveFileIDsLocked(ids []string, matchMode MatchMode) ([]int64, error) {
	if matchMode == MatchID {
		out := make([]int64, 0, len(ids))
		for _, s := range ids {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("editor: invalid file id %q: %w", s, err)
			}
			out = append(out, id)
		}
		return out, nil
	}

	var pattern *regexp.Regexp
	if matchMode == MatchRegex && len(ids) > 0 {
		re, err := regexp.Compile(ids[0])
		if err != nil {
			return nil, fmt.Errorf("editor: invalid regex %q: %w", ids[0], err)
		}
		pattern = re
	}

	var out []int64
	for _, col := range e.queue.CollectionsLocked() {
		for _, f := range col.Files {
			name := f.Filename
			switch matchMode {
			case MatchName:
				if matchesAny(name, ids) {
					out = append(out, f.ID)
				}
			case MatchRegex:
				if pattern != nil && pattern.MatchString(name) {
					out = append(out, f.ID)
				}
			}
		}
	}
	return out, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
	}
	return false
}

func (e *Editor) editFiles(ids []string, matchMode MatchMode, action Action, offset int, text string) (bool, error) {
	e.queue.Lock()
	defer e.queue.Unlock()

	fileIDs, err := e.resolveFileIDsLocked(ids, matchMode)
	if err != nil {
		return false, err
	}
	if len(fileIDs) == 0 {
		return false, nil
	}

	switch action {
	case ActionFilePause, ActionFileResume:
		for _, id := range fileIDs {
			if _, f, ok := e.queue.FindFileLocked(id); ok {
				f.Paused = action == ActionFilePause
			}
		}
		return true, nil

	case ActionFileDelete:
		for _, id := range fileIDs {
			if col, f, ok := e.queue.FindFileLocked(id); ok {
				f.Deleted = true
				col.RecalculateRemaining()
			}
		}
		return true, nil

	case ActionFilePauseAllPars, ActionFilePauseExtraPars:
		seen := map[string]bool{}
		for _, id := range fileIDs {
			col, _, ok := e.queue.FindFileLocked(id)
			if !ok || seen[col.ID] {
				continue
			}
			seen[col.ID] = true
			pausePars(col, action == ActionFilePauseExtraPars)
		}
		return true, nil

	case ActionFileMoveOffset, ActionFileMoveTop, ActionFileMoveBottom, ActionFileReorder:
		return moveFiles(fileIDs, e.queue, action, offset)

	case ActionFileSplit:
		return e.splitFiles(fileIDs, text)

	default:
		return false, fmt.Errorf("editor: unhandled file action %d", action)
	}
}

// pausePars pauses a collection's par-recovery files. extraOnly keeps the
// lowest-indexed par file (the "main" volume a repair pass needs first)
// unpaused, grounded on original_source's PausePars: "pause all but the
// first par2 file".
func pausePars(col *model.Collection, extraOnly bool) {
	firstParIndex := -1
	if extraOnly {
		for _, f := range col.Files {
			if f.IsParFile && (firstParIndex == -1 || f.Index < firstParIndex) {
				firstParIndex = f.Index
			}
		}
	}
	for _, f := range col.Files {
		if !f.IsParFile {
			continue
		}
		if extraOnly && f.Index == firstParIndex {
			continue
		}
		f.Paused = true
	}
}

// moveFiles repositions the selected files within their (shared) owning
// collection's Files slice. Reorder moves them, in selection order, to
// the position of the first selected file; MoveTop/Bottom/Offset shift
// the whole selected block.
func moveFiles(fileIDs []int64, q *queue.Coordinator, action Action, offset int) (bool, error) {
	if len(fileIDs) == 0 {
		return false, nil
	}
	var col *model.Collection
	var targets []*model.File
	for _, id := range fileIDs {
		c, f, ok := q.FindFileLocked(id)
		if !ok {
			continue
		}
		if col == nil {
			col = c
		} else if col.ID != c.ID {
			return false, fmt.Errorf("editor: move/reorder requires all selected files to share one collection")
		}
		targets = append(targets, f)
	}
	if col == nil || len(targets) == 0 {
		return false, nil
	}

	isTarget := make(map[*model.File]bool, len(targets))
	firstPos := len(col.Files)
	for i, f := range col.Files {
		for _, t := range targets {
			if f == t {
				isTarget[f] = true
				if i < firstPos {
					firstPos = i
				}
			}
		}
	}

	remaining := col.Files[:0:0]
	for _, f := range col.Files {
		if !isTarget[f] {
			remaining = append(remaining, f)
		}
	}

	var insertAt int
	switch action {
	case ActionFileMoveTop:
		insertAt = 0
	case ActionFileMoveBottom:
		insertAt = len(remaining)
	case ActionFileMoveOffset:
		insertAt = clamp(firstPos+offset, 0, len(remaining))
	case ActionFileReorder:
		insertAt = clamp(firstPos, 0, len(remaining))
	}

	out := make([]*model.File, 0, len(col.Files))
	out = append(out, remaining[:insertAt]...)
	out = append(out, targets...)
	out = append(out, remaining[insertAt:]...)
	col.Files = out
	return true, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// splitFiles pulls the selected files out of their collection into a
// brand-new one (spec §4.4 file-split; original_source's
// QueueEditor::SplitGroup / QueueCoordinator::SplitQueueEntries).
func (e *Editor) splitFiles(fileIDs []int64, name string) (bool, error) {
	if len(fileIDs) == 0 {
		return false, nil
	}
	var src *model.Collection
	var moved []*model.File
	for _, id := range fileIDs {
		col, f, ok := e.queue.FindFileLocked(id)
		if !ok {
			continue
		}
		if src == nil {
			src = col
		} else if src.ID != col.ID {
			return false, fmt.Errorf("editor: split requires all selected files to share one collection")
		}
		moved = append(moved, f)
	}
	if src == nil || len(moved) == 0 || len(moved) == len(src.Files) {
		// Splitting every file out of a group is a no-op group rename,
		// not a split (original_source returns false in this case too).
		return false, nil
	}

	if name == "" {
		name = src.Name + " (split)"
	}
	dst := model.NewCollection(name, src.NZBFilename, src.DestDir, src.Category, src.Priority)
	dst.Params = make(model.PostParams, len(src.Params))
	for k, v := range src.Params {
		dst.Params[k] = v
	}

	movedSet := make(map[*model.File]bool, len(moved))
	for _, f := range moved {
		movedSet[f] = true
	}
	remaining := src.Files[:0:0]
	for _, f := range src.Files {
		if movedSet[f] {
			f.CollectionID = dst.ID
			dst.AddFile(f)
		} else {
			remaining = append(remaining, f)
		}
	}
	src.Files = remaining
	src.RecalculateRemaining()

	e.queue.InsertLocked(dst)
	return true, nil
}

func (e *Editor) editGroups(ids []string, matchMode MatchMode, action Action, offset int, text string) (bool, error) {
	e.queue.Lock()
	defer e.queue.Unlock()

	cols, err := e.resolveGroupsLocked(ids, matchMode)
	if err != nil {
		return false, err
	}
	if len(cols) == 0 {
		return false, nil
	}

	switch action {
	case ActionGroupPause, ActionGroupResume:
		for _, col := range cols {
			col.Paused = action == ActionGroupPause
		}
	case ActionGroupDelete, ActionGroupDupeDelete, ActionGroupFinalDelete:
		for _, col := range cols {
			switch action {
			case ActionGroupDupeDelete:
				col.DeleteStatus = model.DeleteDupe
			case ActionGroupFinalDelete:
				col.DeleteStatus = model.DeleteManual
				col.AvoidHistory = true
			default:
				col.DeleteStatus = model.DeleteManual
			}
			e.queue.RemoveLocked(col.ID)
		}
	case ActionGroupPauseAllPars, ActionGroupPauseExtraPars:
		for _, col := range cols {
			pausePars(col, action == ActionGroupPauseExtraPars)
		}
	case ActionGroupSetPriority:
		p, err := strconv.Atoi(text)
		if err != nil {
			return false, fmt.Errorf("editor: invalid priority %q: %w", text, err)
		}
		for _, col := range cols {
			col.Priority = p
		}
	case ActionGroupSetCategory:
		for _, col := range cols {
			col.Category = text
			if cat, ok := e.categories[text]; ok {
				cat.ApplyDefaults(col)
			}
		}
	case ActionGroupSetName:
		for _, col := range cols {
			col.Name = text
		}
	case ActionGroupSetDupeKey:
		for _, col := range cols {
			col.DupeKey = text
		}
	case ActionGroupSetDupeScore:
		s, err := strconv.Atoi(text)
		if err != nil {
			return false, fmt.Errorf("editor: invalid dupe score %q: %w", text, err)
		}
		for _, col := range cols {
			col.DupeScore = s
		}
	case ActionGroupSetDupeMode:
		mode, err := parseDupeMode(text)
		if err != nil {
			return false, err
		}
		for _, col := range cols {
			col.DupeMode = mode
		}
	case ActionGroupMarkDupe:
		// Forces this collection to win any future dupe-dominance check
		// against it (spec §4.4 Open Question: mark-dupe has no exact
		// original_source analogue; resolved as dupe-mode=force).
		for _, col := range cols {
			col.DupeMode = model.DupeModeForce
		}
	case ActionGroupSetPostParameter:
		name, value, ok := strings.Cut(text, "=")
		if !ok {
			return false, fmt.Errorf("editor: set-post-parameter expects name=value, got %q", text)
		}
		for _, col := range cols {
			if col.Params == nil {
				col.Params = make(model.PostParams)
			}
			col.Params[name] = value
		}
	case ActionGroupSortFiles:
		for _, col := range cols {
			sort.SliceStable(col.Files, func(i, j int) bool {
				return col.Files[i].Filename < col.Files[j].Filename
			})
		}
	case ActionGroupMoveTop, ActionGroupMoveBottom, ActionGroupMoveOffset:
		live := e.queue.CollectionsLocked()
		for _, col := range cols {
			idx := indexOf(live, col.ID)
			switch action {
			case ActionGroupMoveTop:
				e.queue.MoveCollectionLocked(col.ID, 0)
			case ActionGroupMoveBottom:
				e.queue.MoveCollectionLocked(col.ID, len(live)-1)
			case ActionGroupMoveOffset:
				e.queue.MoveCollectionLocked(col.ID, idx+offset)
			}
			live = e.queue.CollectionsLocked()
		}
	case ActionGroupMerge:
		return e.mergeGroups(cols)
	default:
		return false, fmt.Errorf("editor: unhandled group action %d", action)
	}
	return true, nil
}

func indexOf(cols []*model.Collection, id string) int {
	for i, c := range cols {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (e *Editor) resolveGroupsLocked(ids []string, matchMode MatchMode) ([]*model.Collection, error) {
	live := e.queue.CollectionsLocked()
	if matchMode == MatchID {
		wanted := make(map[string]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
		var out []*model.Collection
		for _, col := range live {
			if wanted[col.ID] {
				out = append(out, col)
			}
		}
		return out, nil
	}

	var pattern *regexp.Regexp
	if matchMode == MatchRegex && len(ids) > 0 {
		re, err := regexp.Compile(ids[0])
		if err != nil {
			return nil, fmt.Errorf("editor: invalid regex %q: %w", ids[0], err)
		}
		pattern = re
	}
	var out []*model.Collection
	for _, col := range live {
		switch matchMode {
		case MatchName:
			if matchesAny(col.Name, ids) {
				out = append(out, col)
			}
		case MatchRegex:
			if pattern != nil && pattern.MatchString(col.Name) {
				out = append(out, col)
			}
		}
	}
	return out, nil
}

// mergeGroups merges every selected collection's files into the first
// one (spec §4.4 group-merge; original_source's QueueEditor::MergeGroups
// + QueueCoordinator::MergeQueueEntries). Refuses to merge a collection
// that has already entered post-processing — its files are no longer
// addressable the same way.
func (e *Editor) mergeGroups(cols []*model.Collection) (bool, error) {
	if len(cols) < 2 {
		return false, nil
	}
	dest := cols[0]
	if dest.InPostProcess() {
		return false, fmt.Errorf("editor: merge destination %s has already entered post-processing", dest.ID)
	}
	for _, src := range cols[1:] {
		if src.InPostProcess() {
			return false, fmt.Errorf("editor: cannot merge %s, already entered post-processing", src.ID)
		}
	}

	for _, src := range cols[1:] {
		base := len(dest.Files)
		for i, f := range src.Files {
			f.CollectionID = dest.ID
			f.Index = base + i
			dest.Files = append(dest.Files, f)
		}
		dest.TotalBytes += src.TotalBytes
		dest.TotalArticles += src.TotalArticles
		dest.SuccessArticle += src.SuccessArticle
		dest.FailedArticle += src.FailedArticle
		dest.FailedSize += src.FailedSize
		dest.ParFailedSize += src.ParFailedSize
		src.Files = nil
		e.queue.RemoveLocked(src.ID)
	}
	dest.RecalculateRemaining()
	return true, nil
}

func parseDupeMode(text string) (model.DupeMode, error) {
	switch strings.ToLower(text) {
	case "score":
		return model.DupeModeScore, nil
	case "all":
		return model.DupeModeAll, nil
	case "force":
		return model.DupeModeForce, nil
	default:
		return "", fmt.Errorf("editor: unknown dupe mode %q", text)
	}
}

// editPostQueue handles the one post-processing-queue action spec §4.4
// names: dropping a collection that is mid-post-process out of it
// entirely (e.g. an operator-cancelled unpack).
func (e *Editor) editPostQueue(ids []string, action Action) (bool, error) {
	if action != ActionPostQueueDelete {
		return false, fmt.Errorf("editor: unhandled post-queue action %d", action)
	}
	e.queue.Lock()
	defer e.queue.Unlock()
	found := false
	for _, id := range ids {
		if col, ok := e.queue.CollectionLocked(id); ok && col.InPostProcess() {
			col.DeleteStatus = model.DeleteManual
			e.queue.RemoveLocked(id)
			found = true
		}
	}
	return found, nil
}
