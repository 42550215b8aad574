package vad

import "math"

// Segment is one detected speech region in seconds. End > Start always
// holds for returned segments.
type Segment struct {
	Start float64
	End   float64
}

// candidateSilence is a dip below the entry threshold observed while
// inside a speech region, kept as a potential forced-split point.
type candidateSilence struct {
	start   int // sample
	end     int // sample
	minProb float32
}

// SegmentSpeech runs the offline hysteresis segmentation over a full
// sequence of per-chunk speech probabilities. probs[i] scores samples
// [i*ChunkSamples, (i+1)*ChunkSamples); totalSamples bounds the audio.
// Returned segments are time-ordered, non-overlapping and clamped to the
// audio duration.
func SegmentSpeech(probs []float32, totalSamples int, cfg Config) ([]Segment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	neg := cfg.negative()
	minSpeech := samplesOf(cfg.MinSpeechDuration)
	minSilence := samplesOf(cfg.MinSilenceDuration)
	pad := samplesOf(cfg.SpeechPadding)
	minCandidate := samplesOf(cfg.MinSilenceAtMaxSpeech)

	// Max region length net of the window and the padding applied later.
	maxSpeech := math.MaxInt
	if cfg.MaxSpeechDuration > 0 {
		maxSpeech = samplesOf(cfg.MaxSpeechDuration) - ChunkSamples - 2*pad
		if maxSpeech < ChunkSamples {
			maxSpeech = ChunkSamples
		}
	}

	type region struct{ start, end int }
	var regions []region

	triggered := false
	speechStart := 0
	tempEnd, hasTempEnd := 0, false

	var candidates []candidateSilence
	var open *candidateSilence

	// closeOpen finalizes the in-progress candidate at end; too-short dips
	// are discarded.
	closeOpen := func(end int) {
		if open == nil {
			return
		}
		if end-open.start > minCandidate {
			open.end = end
			candidates = append(candidates, *open)
		}
		open = nil
	}

	emit := func(start, end int) {
		if end-start >= minSpeech {
			regions = append(regions, region{start, end})
		}
	}

	for i, p := range probs {
		pos := i * ChunkSamples
		cur := pos + ChunkSamples

		if triggered {
			if p < cfg.Threshold {
				if open == nil {
					open = &candidateSilence{start: pos, minProb: p}
				} else if p < open.minProb {
					open.minProb = p
				}
			} else {
				closeOpen(pos)
			}
		}

		if p >= cfg.Threshold {
			hasTempEnd = false
			if !triggered {
				triggered = true
				speechStart = pos
				candidates = candidates[:0]
			}
		}

		if triggered && cur-speechStart > maxSpeech {
			closeOpen(cur)
			if best := bestSplitCandidate(candidates, cfg.SilenceThresholdForSplit); best != nil {
				emit(speechStart, best.start)
				speechStart = best.end
			} else {
				// No viable silence to split at: end the region here.
				emit(speechStart, cur)
				triggered = false
			}
			candidates = candidates[:0]
			hasTempEnd = false
			continue
		}

		if triggered && p < neg {
			if !hasTempEnd {
				tempEnd = pos
				hasTempEnd = true
			}
			if cur-tempEnd >= minSilence {
				emit(speechStart, tempEnd)
				triggered = false
				hasTempEnd = false
				open = nil
				candidates = candidates[:0]
			}
		}
	}

	if triggered {
		emit(speechStart, totalSamples)
	}

	// Apply padding, splitting narrow gaps evenly between neighbors.
	for i := range regions {
		if i == 0 {
			regions[i].start -= pad
		}
		if i+1 < len(regions) {
			gap := regions[i+1].start - regions[i].end
			if gap < 2*pad {
				regions[i].end += gap / 2
				regions[i+1].start -= gap - gap/2
			} else {
				regions[i].end += pad
				regions[i+1].start -= pad
			}
		} else {
			regions[i].end += pad
		}
	}

	segs := make([]Segment, 0, len(regions))
	for _, r := range regions {
		if r.start < 0 {
			r.start = 0
		}
		if r.end > totalSamples {
			r.end = totalSamples
		}
		if r.end <= r.start {
			continue
		}
		segs = append(segs, Segment{
			Start: float64(r.start) / SampleRate,
			End:   float64(r.end) / SampleRate,
		})
	}
	return segs, nil
}

// bestSplitCandidate picks the forced-split silence: the longest candidate
// that dipped to at or below the split threshold, else the longest overall.
func bestSplitCandidate(candidates []candidateSilence, splitThreshold float32) *candidateSilence {
	var best *candidateSilence
	bestLen := 0
	for i := range candidates {
		c := &candidates[i]
		if c.minProb > splitThreshold {
			continue
		}
		if l := c.end - c.start; l > bestLen {
			best, bestLen = c, l
		}
	}
	if best != nil {
		return best
	}
	for i := range candidates {
		c := &candidates[i]
		if l := c.end - c.start; l > bestLen {
			best, bestLen = c, l
		}
	}
	return best
}
