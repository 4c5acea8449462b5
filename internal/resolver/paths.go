package resolver

import (
	"path/filepath"
	"strings"
)

// ToRelativePath converts an absolute path under base into the forward-slash
// form stored in the record store. Paths outside base are returned
// unchanged apart from slash normalisation.
func ToRelativePath(absolute, base string) string {
	rel, err := filepath.Rel(base, absolute)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(absolute)
	}
	return filepath.ToSlash(rel)
}

// ToAbsolutePath resolves a stored path against base. Stored paths that are
// already absolute are returned as-is.
func ToAbsolutePath(relative, base string) string {
	native := filepath.FromSlash(relative)
	if filepath.IsAbs(native) {
		return filepath.Clean(native)
	}
	return filepath.Join(base, native)
}

// ArtifactRelPath joins an artifact kind directory, session directory and
// file name into the stored forward-slash form.
func ArtifactRelPath(kindDir, sessionDir, fileName string) string {
	return kindDir + "/" + sessionDir + "/" + fileName
}
