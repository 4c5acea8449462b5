package artifactfs

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// IncompleteThreshold is the size below which an artifact is treated as a
// leftover of an interrupted write.
const IncompleteThreshold = 1024

const bytesPerMB = 1024 * 1024

// artifactKinds pairs each artifact directory with the file type it holds.
var artifactKinds = []struct {
	dir string
	ext string
}{
	{conf.DirAudioSegments, ".wav"},
	{conf.DirSpectrograms, ".png"},
}

// StorageUsage summarizes the space taken by artifacts.
type StorageUsage struct {
	AudioSegmentsMB  float64 `json:"audio_segments_mb"`
	SpectrogramsMB   float64 `json:"spectrograms_mb"`
	AudioSegments    int     `json:"audio_segments"`
	Spectrograms     int     `json:"spectrograms"`
	TotalMB          float64 `json:"total_mb"`
	FreeMB           uint64  `json:"free_mb"`
	FreeSpaceUnknown bool    `json:"free_space_unknown,omitempty"`
}

// SessionFiles counts the artifacts in one session directory.
type SessionFiles struct {
	AudioSegments int `json:"audio_segments"`
	Spectrograms  int `json:"spectrograms"`
}

// CleanupResult counts files removed by CleanupIncomplete.
type CleanupResult struct {
	AudioSegments int `json:"audio_segments"`
	Spectrograms  int `json:"spectrograms"`
}

// Total returns the number of removed files.
func (r CleanupResult) Total() int {
	return r.AudioSegments + r.Spectrograms
}

// EnsureLayout creates the artifact directories. Existing directories are
// left alone.
func (a *FS) EnsureLayout() error {
	for _, kind := range artifactKinds {
		if err := a.MkdirAll(kind.dir); err != nil {
			return errors.New(err).
				Component("artifactfs").
				Category(errors.CategoryFileIO).
				Context("operation", "ensure_layout").
				Context("directory", kind.dir).
				Build()
		}
	}
	return nil
}

// EnsureSourceLayout creates the completed, inbox and failed tiers under
// the source audio directory, which need not live inside the artifact root.
func EnsureSourceLayout(sourceAudio string) error {
	for _, tier := range []string{conf.DirCompleted, conf.DirInbox, conf.DirFailed} {
		dir := filepath.Join(sourceAudio, tier)
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return errors.New(err).
				Component("artifactfs").
				Category(errors.CategoryFileIO).
				Context("operation", "ensure_source_layout").
				Context("directory", dir).
				Build()
		}
	}
	return nil
}

// StorageUsage sums artifact sizes recursively and reports free space on
// the artifact volume.
func (a *FS) StorageUsage() (StorageUsage, error) {
	var usage StorageUsage

	for _, kind := range artifactKinds {
		var bytes int64
		count := 0
		err := fs.WalkDir(a.root.FS(), kind.dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if isNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() || !strings.EqualFold(path.Ext(p), kind.ext) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil //nolint:nilerr // file vanished mid-walk
			}
			bytes += info.Size()
			count++
			return nil
		})
		if err != nil {
			return StorageUsage{}, errors.New(err).
				Component("artifactfs").
				Category(errors.CategoryFileIO).
				Context("operation", "storage_usage").
				Context("directory", kind.dir).
				Build()
		}

		mb := float64(bytes) / bytesPerMB
		switch kind.dir {
		case conf.DirAudioSegments:
			usage.AudioSegmentsMB, usage.AudioSegments = mb, count
		case conf.DirSpectrograms:
			usage.SpectrogramsMB, usage.Spectrograms = mb, count
		}
		usage.TotalMB += mb
	}

	free, err := a.FreeSpaceMB()
	if err != nil {
		GetLogger().Debug("Free space unavailable", logger.Error(err))
		usage.FreeSpaceUnknown = true
	} else {
		usage.FreeMB = free
	}
	return usage, nil
}

// SessionFileCounts counts the clips and spectrograms of one session
// directory. A session with no artifacts yet yields zero counts.
func (a *FS) SessionFileCounts(sessionDir string) (SessionFiles, error) {
	var counts SessionFiles
	for _, kind := range artifactKinds {
		entries, err := a.ReadDir(path.Join(kind.dir, sessionDir))
		if err != nil {
			return SessionFiles{}, err
		}
		n := 0
		for _, e := range entries {
			if e.Type().IsRegular() && strings.EqualFold(path.Ext(e.Name()), kind.ext) {
				n++
			}
		}
		if kind.dir == conf.DirAudioSegments {
			counts.AudioSegments = n
		} else {
			counts.Spectrograms = n
		}
	}
	return counts, nil
}

// CleanupIncomplete deletes artifacts smaller than IncompleteThreshold in
// one session directory, or in every session when sessionDir is empty.
func (a *FS) CleanupIncomplete(sessionDir string) (CleanupResult, error) {
	var result CleanupResult
	log := GetLogger()

	for _, kind := range artifactKinds {
		dirs := []string{path.Join(kind.dir, sessionDir)}
		if sessionDir == "" {
			sessions, err := a.ReadDir(kind.dir)
			if err != nil {
				return result, err
			}
			dirs = dirs[:0]
			for _, s := range sessions {
				if s.IsDir() {
					dirs = append(dirs, path.Join(kind.dir, s.Name()))
				}
			}
		}

		for _, dir := range dirs {
			entries, err := a.ReadDir(dir)
			if err != nil {
				return result, err
			}
			for _, e := range entries {
				if !e.Type().IsRegular() || !strings.EqualFold(path.Ext(e.Name()), kind.ext) {
					continue
				}
				info, err := e.Info()
				if err != nil || info.Size() >= IncompleteThreshold {
					continue
				}
				rel := path.Join(dir, e.Name())
				if err := a.Remove(rel); err != nil {
					log.Warn("Failed to remove incomplete artifact",
						logger.String("path", rel),
						logger.Error(err))
					continue
				}
				log.Info("Removed incomplete artifact",
					logger.String("path", rel),
					logger.Int64("size", info.Size()))
				if kind.dir == conf.DirAudioSegments {
					result.AudioSegments++
				} else {
					result.Spectrograms++
				}
			}
		}
	}
	return result, nil
}

// FreeSpaceMB returns the free space on the volume holding the artifact root.
func (a *FS) FreeSpaceMB() (uint64, error) {
	usage, err := disk.Usage(a.baseDir)
	if err != nil {
		return 0, errors.New(err).
			Component("artifactfs").
			Category(errors.CategorySystem).
			Context("operation", "free_space").
			Build()
	}
	return usage.Free / bytesPerMB, nil
}

// CheckFreeSpace reports whether at least minMB is free. When free space
// cannot be determined the check passes.
func (a *FS) CheckFreeSpace(minMB uint64) (ok bool, freeMB uint64) {
	if minMB == 0 {
		return true, 0
	}
	free, err := a.FreeSpaceMB()
	if err != nil {
		return true, 0
	}
	return free >= minMB, free
}
