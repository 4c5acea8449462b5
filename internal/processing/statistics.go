package processing

import (
	"github.com/tphakala/birdnet-artifacts/internal/artifactfs"
	"github.com/tphakala/birdnet-artifacts/internal/datastore"
)

// RunStatistics counts the outcome of processed items. Errors holds one
// message per failed item, each carrying the detection id.
type RunStatistics struct {
	Processed            int      `json:"processed_count"`
	Succeeded            int      `json:"success_count"`
	AudioSucceeded       int      `json:"audio_success"`
	SpectrogramSucceeded int      `json:"spectrogram_success"`
	SpectrogramFailed    int      `json:"spectrogram_failed"`
	Failed               int      `json:"error_count"`
	TotalPending         int      `json:"total_pending"`
	Batches              int      `json:"batches"`
	Aborted              bool     `json:"aborted,omitempty"`
	Errors               []string `json:"errors"`
}

// SuccessRate returns succeeded items as a percentage of processed ones.
func (s RunStatistics) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Processed) * 100
}

func (s RunStatistics) clone() RunStatistics {
	c := s
	c.Errors = append([]string(nil), s.Errors...)
	if c.Errors == nil {
		c.Errors = []string{}
	}
	return c
}

// add folds one item outcome into s.
func (s *RunStatistics) add(r itemResult) {
	s.Processed++
	if r.audio {
		s.AudioSucceeded++
	}
	if r.spectrogram {
		s.SpectrogramSucceeded++
	}
	if r.renderFailed {
		s.SpectrogramFailed++
	}
	if r.success {
		s.Succeeded++
		return
	}
	s.Failed++
	s.Errors = append(s.Errors, r.message)
}

// Statistics is the store-wide progress merged with the statistics
// accumulated by the manager since its last reset.
type Statistics struct {
	datastore.ProgressCounts
	AudioProgressPercent       float64                 `json:"audio_progress_percent"`
	SpectrogramProgressPercent float64                 `json:"spectrogram_progress_percent"`
	Storage                    artifactfs.StorageUsage `json:"storage"`
	Run                        RunStatistics           `json:"run"`
}
