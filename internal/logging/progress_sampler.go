package logging

import "strings"

// ProgressSampler thins repetitive progress logs down to stage changes and
// percent-bucket crossings so a two-second poll cadence does not flood the
// daemon log.
type ProgressSampler struct {
	bucketSize float64
	stage      string
	bucket     int
}

// NewProgressSampler builds a sampler emitting on stage changes and whenever
// the percent advances into a new bucket (default width 5%).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, bucket: -1}
}

// ShouldLog reports whether this progress event carries new signal. A
// negative percent means "unknown" and never advances the bucket. The
// message is ignored for deduplication since it usually embeds volatile
// values like ETA.
func (s *ProgressSampler) ShouldLog(percent float64, stage, _ string) bool {
	if s == nil {
		return true
	}
	emit := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage = stage
		s.bucket = -1
		emit = true
	}
	if percent >= 0 {
		if percent > 100 {
			percent = 100
		}
		if bucket := int(percent / s.bucketSize); bucket > s.bucket {
			s.bucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state when a new transfer starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.stage = ""
	s.bucket = -1
}
