// Package postprocess implements the Post-Processor (spec §4.5,
// component C5): once a collection's downloads are all terminal, it
// drives PAR-rename, PAR-check/repair, unpack, cleanup, move and
// post-script stages in sequence, grounded on
// original_source/trunk/PrePostProcessor.cpp's StartJob/RunScript chain.
package postprocess

// ParCheckMode mirrors the original's ParCheck setting: whether to run a
// par2 verify pass at all, and whether to trust per-article CRCs to skip
// the read-back (spec §4.5 "quick-verify-by-CRC").
type ParCheckMode string

const (
	ParCheckAuto  ParCheckMode = "auto"  // verify only if a file looks damaged
	ParCheckAll   ParCheckMode = "all"   // always verify, even with no known damage
	ParCheckForce ParCheckMode = "force" // always verify; handled the same as all
	ParCheckOff   ParCheckMode = "off"
)

// Config is the post-processor's tunables, spec §6's PostProcess-related
// keys.
type Config struct {
	ParCheck   ParCheckMode
	ParRepair  bool
	ParRename  bool
	ParTimeout int // seconds, 0 = no limit

	ParPauseQueue    bool
	UnpackPauseQueue bool
	ScriptPauseQueue bool

	UnpackCleanupDisk []string // extensions removed after a successful unpack
	InterimDir        string   // not read by the stages; the move stage uses each collection's own InterimDir

	DefaultUnpackPassword string

	// ParallelJobs bounds how many collections post-process concurrently
	// (spec §4.5 "post-strategy"); the original ran one at a time.
	ParallelJobs int
}

// DefaultConfig mirrors the original's out-of-the-box PostProcess
// defaults (ParCheck=auto, ParRepair=yes, sequential post-processing).
func DefaultConfig() Config {
	return Config{
		ParCheck:     ParCheckAuto,
		ParRepair:    true,
		ParRename:    true,
		ParallelJobs: 1,
	}
}

func (c Config) cleanupSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.UnpackCleanupDisk))
	for _, ext := range c.UnpackCleanupDisk {
		set[ext] = struct{}{}
	}
	return set
}
