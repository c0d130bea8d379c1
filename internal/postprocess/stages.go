package postprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/nzbcore/nzbcore/internal/extract"
	"github.com/nzbcore/nzbcore/internal/model"
	"github.com/nzbcore/nzbcore/internal/repair"
)

// firstParFile returns the collection's first non-deleted par2 volume,
// or "" if it has none — grounded on ParChecker's "find any .par2 in
// the destination directory" scan.
func firstParFile(col *model.Collection) string {
	for _, f := range col.Files {
		if f.IsParFile && !f.Deleted {
			return filepath.Base(f.FinalPath)
		}
	}
	return ""
}

// runRename executes the RENAMING stage: spec §4.5 PAR-rename reads the
// par2 set's FileDesc packets and renames any downloaded file whose
// content hash matches a recorded descriptor but whose on-disk name
// doesn't, restoring names an obfuscated or truncated post lost.
func (p *Processor) runRename(col *model.Collection) {
	col.Stage = model.StageRenaming
	if !p.cfg.ParRename {
		col.RenameStatus = model.StageSkipped
		return
	}
	parFile := firstParFile(col)
	if parFile == "" {
		col.RenameStatus = model.StageSkipped
		return
	}

	plans, err := repair.PlanRename(col.DestDir, parFile)
	if err != nil {
		p.logger.Warn("postprocess: %s: rename scan failed: %v", col.Name, err)
		col.RenameStatus = model.StageFailure
		return
	}
	if len(plans) == 0 {
		col.RenameStatus = model.StageSuccess
		return
	}
	if err := repair.ApplyRename(col.DestDir, plans); err != nil {
		p.logger.Warn("postprocess: %s: rename apply failed: %v", col.Name, err)
		col.RenameStatus = model.StageFailure
		return
	}
	for _, plan := range plans {
		for _, f := range col.Files {
			if filepath.Base(f.FinalPath) == plan.CurrentPath {
				f.FinalPath = filepath.Join(filepath.Dir(f.FinalPath), plan.TargetName)
			}
		}
	}
	col.RenameStatus = model.StageSuccess
}

// runParCheck executes VERIFYING_SOURCES / REPAIRING / VERIFYING_REPAIRED:
// spec §4.5's par2 decision tree, grounded on ParChecker::RunParCheck.
func (p *Processor) runParCheck(ctx context.Context, col *model.Collection) {
	if p.cfg.ParCheck == ParCheckOff {
		col.ParStatus = model.StageSkipped
		return
	}
	if healthCheck(col) {
		col.DeleteStatus = model.DeleteHealth
		col.ParStatus = model.StageFailure
		return
	}

	parFile := firstParFile(col)
	if parFile == "" {
		// spec §8 scenario: "no par files present -> par-status=skipped".
		col.ParStatus = model.StageSkipped
		return
	}

	if p.cfg.ParCheck == ParCheckAuto && allFilesQuickVerified(col) {
		col.ParStatus = model.StageSkipped
		return
	}

	if p.cfg.ParTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.ParTimeout)*time.Second)
		defer cancel()
	}

	col.Stage = model.StageVerifyingSources
	var progress repair.ProgressFunc
	res, err := p.repairer.Verify(ctx, col.DestDir, parFile, progress)
	if err != nil {
		p.logger.Error("postprocess: %s: par2 verify failed: %v", col.Name, err)
		col.ParStatus = model.StageFailure
		return
	}

	switch res.Status {
	case repair.StatusOK:
		col.ParStatus = model.StageSuccess
		return
	case repair.StatusRepairFailed:
		col.ParStatus = model.StageFailure
		return
	}

	// StatusRepairPossible: damage found, repair data available.
	if !p.cfg.ParRepair {
		col.ParStatus = model.StageFailure
		return
	}

	col.Stage = model.StageRepairing
	if p.cfg.ParPauseQueue {
		p.pause.Pause("par")
		defer p.pause.Unpause("par")
	}

	repairRes, err := p.repairer.Repair(ctx, col.DestDir, parFile, progress)
	if err != nil {
		p.logger.Error("postprocess: %s: par2 repair failed: %v", col.Name, err)
		col.ParStatus = model.StageFailure
		return
	}

	col.Stage = model.StageVerifyingRepaired
	if repairRes.Status == repair.StatusOK {
		col.ParStatus = model.StageSuccess
	} else {
		col.ParStatus = model.StageFailure
	}
}

// runUnpack executes UNPACKING: spec §4.5's archive-detect-and-extract
// stage, grounded on processor/detector.go's Manager.DetectArchives.
func (p *Processor) runUnpack(ctx context.Context, col *model.Collection) {
	col.Stage = model.StageUnpacking

	if col.Params["Unpack"] == "no" {
		col.UnpackStatus = model.UnpackSkipped
		return
	}
	if col.ParStatus == model.StageFailure {
		// bParFailed: a failed/unrepaired par set means the archive is
		// almost certainly incomplete, so unpack is pointless.
		col.UnpackStatus = model.UnpackSkipped
		return
	}
	if !p.extractor.HasExtractors() {
		col.UnpackStatus = model.UnpackSkipped
		return
	}

	paths := make([]string, 0, len(col.Files))
	for _, f := range col.Files {
		if !f.Deleted {
			paths = append(paths, f.FinalPath)
		}
	}

	archives, err := p.extractor.Detect(paths)
	if err != nil {
		p.logger.Error("postprocess: %s: archive detection failed: %v", col.Name, err)
		col.UnpackStatus = model.UnpackFailure
		return
	}
	if len(archives) == 0 {
		col.UnpackStatus = model.UnpackSkipped
		return
	}

	if p.cfg.UnpackPauseQueue {
		p.pause.Pause("unpack")
		defer p.pause.Unpause("unpack")
	}

	password := col.Password
	if password == "" {
		password = p.cfg.DefaultUnpackPassword
	}

	for archivePath, ext := range archives {
		if _, err := ext.Extract(ctx, archivePath, col.DestDir, password); err != nil {
			if errors.Is(err, extract.ErrWrongPassword) {
				col.UnpackStatus = model.UnpackPassword
				return
			}
			if isDiskFullErr(err) {
				col.UnpackStatus = model.UnpackSpace
				return
			}
			p.logger.Error("postprocess: %s: unpack %s failed: %v", col.Name, filepath.Base(archivePath), err)
			col.UnpackStatus = model.UnpackFailure
			return
		}
	}
	col.UnpackStatus = model.UnpackSuccess
}

func isDiskFullErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no space left")
}

// runCleanup removes archive/par leftovers named in the configured
// cleanup-disk extension list, spec §4.5's "ext-cleanup-disk" stage. It
// only runs once par and unpack both ended in success or were skipped
// cleanly (PrePostProcessor::StartJob's bCleanup gate).
func (p *Processor) runCleanup(col *model.Collection) {
	if len(p.cfg.UnpackCleanupDisk) == 0 {
		col.CleanupStatus = model.StageSkipped
		return
	}
	if col.ParStatus == model.StageFailure || col.UnpackStatus == model.UnpackFailure ||
		col.UnpackStatus == model.UnpackPassword || col.UnpackStatus == model.UnpackSpace {
		col.CleanupStatus = model.StageSkipped
		return
	}

	set := p.cfg.cleanupSet()
	removed := 0
	for _, f := range col.Files {
		if f.Deleted {
			continue
		}
		if extract.CleanupExtensions(f.FinalPath, set) {
			if err := os.Remove(f.FinalPath); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		col.CleanupStatus = model.StageSuccess
	} else {
		col.CleanupStatus = model.StageSkipped
	}
}

// runMove executes MOVING: relocating files out of an interim working
// directory into dest_dir once processing has finished with them, spec
// §4.5's "interim-dir in use and nothing failed" condition
// (PrePostProcessor::StartJob's bMoveInter).
func (p *Processor) runMove(col *model.Collection) {
	col.Stage = model.StageMoving
	if col.InterimDir == "" || col.InterimDir == col.DestDir {
		col.MoveStatus = model.StageSkipped
		return
	}
	if col.ParStatus == model.StageFailure || col.UnpackStatus == model.UnpackFailure {
		col.MoveStatus = model.StageSkipped
		return
	}

	if err := os.MkdirAll(col.DestDir, 0o755); err != nil {
		p.logger.Error("postprocess: %s: mkdir dest: %v", col.Name, err)
		col.MoveStatus = model.StageFailure
		return
	}

	failed := false
	for _, f := range col.Files {
		if f.Deleted {
			continue
		}
		if !strings.HasPrefix(f.FinalPath, col.InterimDir) {
			continue
		}
		rel, err := filepath.Rel(col.InterimDir, f.FinalPath)
		if err != nil {
			failed = true
			continue
		}
		dest := filepath.Join(col.DestDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			failed = true
			continue
		}
		if err := extract.MoveFile(f.FinalPath, dest); err != nil {
			p.logger.Error("postprocess: %s: move %s: %v", col.Name, rel, err)
			failed = true
			continue
		}
		f.FinalPath = dest
	}

	if failed {
		col.MoveStatus = model.StageFailure
	} else {
		col.MoveStatus = model.StageSuccess
	}
}

// runPostScript executes EXECUTING_SCRIPT: the category/NZB-configured
// post-processing script, invoked with the NZBPP_* environment variables
// the original's EnvironmentStrategy family establishes.
func (p *Processor) runPostScript(ctx context.Context, col *model.Collection) {
	col.Stage = model.StageExecutingScript

	script := col.Params["PostScript"]
	if script == "" {
		col.ScriptStatus = model.StageSkipped
		return
	}

	if p.cfg.ScriptPauseQueue {
		p.pause.Pause("script")
		defer p.pause.Unpause("script")
	}

	cmd := exec.CommandContext(ctx, script)
	cmd.Dir = col.DestDir
	cmd.Env = append(os.Environ(),
		"NZBPP_DIRECTORY="+col.DestDir,
		"NZBPP_NZBNAME="+col.Name,
		"NZBPP_CATEGORY="+col.Category,
		"NZBPP_PARSTATUS="+string(col.ParStatus),
		"NZBPP_UNPACKSTATUS="+string(col.UnpackStatus),
		fmt.Sprintf("NZBPP_HEALTH=%d", col.Health),
	)

	if err := cmd.Run(); err != nil {
		p.logger.Error("postprocess: %s: post-script failed: %v", col.Name, err)
		col.ScriptStatus = model.StageFailure
		return
	}
	col.ScriptStatus = model.StageSuccess
}
