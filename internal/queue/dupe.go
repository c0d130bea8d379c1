package queue

import "github.com/nzbcore/nzbcore/internal/model"

// dupeAction is what add_nzb does when a candidate collection's dupe-key
// matches an already-queued collection (spec §4.3 "Duplicate handling").
type dupeAction int

const (
	// dupeActionAccept: no conflicting key, or the candidate dominates —
	// the caller removes the existing collection and queues the candidate.
	dupeActionAccept dupeAction = iota
	// dupeActionAcceptAlongside: dupe-mode=all on either side — both stay
	// queued, no removal.
	dupeActionAcceptAlongside
	// dupeActionReject: the existing collection dominates — the candidate
	// is not queued (it is recorded into history as a dupe, by the
	// caller).
	dupeActionReject
)

// decideDupe applies the dominance rule: equal dupe-key is required for
// any of this to matter; dupe-mode=force always accepts; dupe-mode=all
// keeps both; otherwise the higher dupe-score wins, and a tie favors
// whichever is already queued (it arrived first).
func decideDupe(existing, candidate *model.Collection) dupeAction {
	if existing.DupeKey == "" || candidate.DupeKey == "" || existing.DupeKey != candidate.DupeKey {
		return dupeActionAccept
	}
	if candidate.DupeMode == model.DupeModeForce {
		return dupeActionAccept
	}
	if candidate.DupeMode == model.DupeModeAll || existing.DupeMode == model.DupeModeAll {
		return dupeActionAcceptAlongside
	}
	if candidate.DupeScore > existing.DupeScore {
		return dupeActionAccept
	}
	return dupeActionReject
}
