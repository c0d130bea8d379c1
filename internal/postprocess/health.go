package postprocess

import "github.com/nzbcore/nzbcore/internal/model"

// healthCheck implements spec §4.5's health gate, grounded on
// PrePostProcessor::StartJob's bParFailed/health short-circuit: if the
// collection's health has already dropped below its critical threshold
// and there is no way to make up the loss with par recovery data, the
// whole post-process chain is skipped in favor of an immediate
// delete-status=health.
//
// hasUndamagedParFiles reports whether any non-deleted par file in the
// collection downloaded completely; without one, lost articles cannot be
// recovered, so any loss below critical health is final.
func healthCheck(col *model.Collection) (failHealth bool) {
	col.ComputeHealth()
	if col.Health >= col.CriticalHealth {
		return false
	}
	if !hasUndamagedParFiles(col) {
		return true
	}
	// Some par data survived; let PAR-check decide whether it's enough.
	return false
}

func hasUndamagedParFiles(col *model.Collection) bool {
	for _, f := range col.Files {
		if f.IsParFile && !f.Deleted && f.IsComplete() {
			return true
		}
	}
	return false
}

// quickVerifyByCRC implements spec §4.5's "trusts stored per-file CRCs to
// skip per-file verification if all match": a file is considered already
// verified if every one of its articles reported a valid CRC during
// download, so PAR-check doesn't need to re-read it from disk.
func quickVerifyByCRC(f *model.File) bool {
	if len(f.Articles) == 0 {
		return false
	}
	for _, a := range f.Articles {
		if a.Status != model.ArticleFinishedOK || !a.CRCValid {
			return false
		}
	}
	return true
}

// allFilesQuickVerified reports whether every non-deleted, non-par file
// in the collection passes quickVerifyByCRC, the condition under which
// ParCheckMode=auto skips the par2 binary entirely (par-status=skipped).
func allFilesQuickVerified(col *model.Collection) bool {
	for _, f := range col.Files {
		if f.Deleted || f.IsParFile {
			continue
		}
		if !quickVerifyByCRC(f) {
			return false
		}
	}
	return true
}
