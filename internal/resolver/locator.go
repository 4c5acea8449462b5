package resolver

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// Defaults used when search settings are left empty.
var (
	DefaultPriorityDirs = []string{conf.DirCompleted, conf.DirInbox}
	DefaultExtensions   = []string{".wav", ".mp3", ".flac", ".m4a", ".ogg"}
)

const (
	DefaultMaxDepth   = 12
	DefaultMaxEntries = 100000
)

// SourceLocator finds the recording a detection refers to.
type SourceLocator interface {
	FindSourceAudio(stem string) (string, bool)
}

// Locator searches the source audio tiers, then the project tree, for a
// recording by its extension-less name.
type Locator struct {
	priorityDirs []string // absolute, searched in order
	extensions   []string // tried in order, earlier wins
	projectRoot  string
	maxDepth     int
	maxEntries   int
	skipDirs     map[string]struct{}
	log          logger.Logger
}

// NewLocator builds a Locator from settings.
func NewLocator(settings *conf.Settings) *Locator {
	s := settings.Search

	dirs := s.PriorityDirs
	if len(dirs) == 0 {
		dirs = DefaultPriorityDirs
	}
	priority := make([]string, 0, len(dirs))
	for _, d := range dirs {
		priority = append(priority, ToAbsolutePath(d, settings.Paths.SourceAudio))
	}

	exts := s.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	maxDepth := s.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	maxEntries := s.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Locator{
		priorityDirs: priority,
		extensions:   exts,
		projectRoot:  settings.Paths.ProjectRoot,
		maxDepth:     maxDepth,
		maxEntries:   maxEntries,
		skipDirs: map[string]struct{}{
			conf.DirAudioSegments: {},
			conf.DirSpectrograms:  {},
		},
		log: logger.Global().Module("resolver"),
	}
}

// FindSourceAudio returns the path of <stem><ext> in the first priority
// directory and extension that has it. Failing that it walks the project
// tree, preferring earlier extensions and then walk order. Not finding the
// file is not an error.
func (l *Locator) FindSourceAudio(stem string) (string, bool) {
	if !validStem(stem) {
		l.log.Warn("refusing to search for unsafe recording name", logger.String("stem", stem))
		return "", false
	}

	for _, dir := range l.priorityDirs {
		for _, ext := range l.extensions {
			candidate := filepath.Join(dir, stem+ext)
			if isRegularFile(candidate) {
				l.log.Debug("source audio found", logger.String("path", candidate))
				return candidate, true
			}
		}
	}

	if l.projectRoot == "" {
		return "", false
	}

	start := time.Now()
	path, visited, found := l.walkProject(stem)
	if found {
		l.log.Info("source audio found by project scan",
			logger.String("path", path),
			logger.Int("visited", visited),
			logger.Duration("duration", time.Since(start)))
		return path, true
	}

	l.log.Warn("source audio not found",
		logger.String("stem", stem),
		logger.Int("visited", visited))
	return "", false
}

// walkProject scans the project root within the depth and entry bounds.
// Symlinked directories are not followed, and hidden or artifact directories
// are skipped.
func (l *Locator) walkProject(stem string) (string, int, bool) {
	wanted := make(map[string]int, len(l.extensions))
	for i, ext := range l.extensions {
		wanted[stem+ext] = i
	}

	best := ""
	bestRank := len(l.extensions)
	visited := 0
	root := filepath.Clean(l.projectRoot)

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped, not fatal
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		visited++
		if visited > l.maxEntries {
			l.log.Warn("project scan entry limit reached", logger.Int("max_entries", l.maxEntries))
			return filepath.SkipAll
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if _, skip := l.skipDirs[name]; skip {
				return filepath.SkipDir
			}
			if depth(root, path) > l.maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		rank, ok := wanted[d.Name()]
		if !ok || rank >= bestRank || !isRegularFile(path) {
			return nil
		}
		best, bestRank = path, rank
		if rank == 0 {
			return filepath.SkipAll
		}
		return nil
	})

	return best, visited, best != ""
}

// depth counts path components of path below root.
func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

// validStem rejects names that could address files outside the searched
// directories.
func validStem(stem string) bool {
	if stem == "" || stem == "." || stem == ".." {
		return false
	}
	return !strings.ContainsAny(stem, `/\`) && !strings.ContainsRune(stem, 0)
}

// isRegularFile follows symlinks so a linked recording still counts.
func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
