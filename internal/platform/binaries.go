// Package platform checks for the external CLI binaries the daemon
// shells out to (par2 for repair, the archive tools for unpack), spec
// §4.5's PAR-check/repair and UNPACKING stages.
package platform

import (
	"fmt"
	"os/exec"
)

// RequiredBinaries must be present for the daemon to do anything useful
// at all: without par2, PAR-check/repair can never run.
var RequiredBinaries = []string{
	"par2",
}

// OptionalBinaries back one archive format each; internal/extract.Manager
// already tolerates any subset being missing by only registering the
// extractors it can find, so their absence is a startup warning rather
// than a fatal error.
var OptionalBinaries = []string{
	"unrar",
	"7z",
	"unzip",
}

// ValidateDependencies fails startup if a required binary is missing and
// returns the names of any missing optional ones so the caller can log a
// warning about which archive formats won't be extractable.
func ValidateDependencies() (missingOptional []string, err error) {
	for _, bin := range RequiredBinaries {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, fmt.Errorf("required dependency: '%s' not found in PATH", bin)
		}
	}
	for _, bin := range OptionalBinaries {
		if _, err := exec.LookPath(bin); err != nil {
			missingOptional = append(missingOptional, bin)
		}
	}
	return missingOptional, nil
}
