//go:build ruleguard

// Package gorules defines custom linter rules for the artifact pipeline.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// ArtifactWrites flags direct file creation inside the pipeline packages.
//
// Clips and spectrograms must land in the artifact tree through
// artifactfs.FS.WriteAtomic so a failed write never leaves a truncated file
// that the next run would mistake for a finished artifact.
//
//	os.WriteFile(path, data, 0o644)
//
// becomes
//
//	fs.WriteAtomic(rel, func(f *os.File) error { ... })
func ArtifactWrites(m dsl.Matcher) {
	m.Match(
		`os.WriteFile($*_)`,
		`os.Create($*_)`,
	).
		Where(m.File().PkgPath.Matches(`internal/(segment|spectrogram|processing)$`)).
		Report("write artifacts through artifactfs.FS.WriteAtomic")
}

// StdLog flags the standard library logger outside tests.
//
//	log.Printf("processed %d", n)
//
// becomes
//
//	log.Info("processed", logger.Int("count", n))
func StdLog(m dsl.Matcher) {
	m.Import("log")

	m.Match(
		`log.Printf($*_)`,
		`log.Println($*_)`,
		`log.Print($*_)`,
		`log.Fatalf($*_)`,
		`log.Fatal($*_)`,
	).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("use the structured logger from internal/logger")
}

// FilepathJoinArtifacts flags joining the artifact base by hand.
//
// Stored paths are relative to the artifact root; resolve them with
// artifactfs.FS.Abs which rejects escapes from the tree.
func FilepathJoinArtifacts(m dsl.Matcher) {
	m.Match(
		`filepath.Join($fs.BaseDir(), $*_)`,
	).
		Where(m["fs"].Type.Is("*artifactfs.FS") && !m.File().Name.Matches(`_test\.go$`)).
		Report("resolve artifact paths with $fs.Abs")
}
