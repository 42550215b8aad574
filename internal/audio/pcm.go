package audio

// PCM16ToFloat32 converts s16le samples to float32 normalized to [-1, 1].
// Dividing by 32768 (not 32767) maps the full int16 range [-32768, 32767]
// to [-1.0, ~0.99997], keeping every value strictly within [-1, 1].
func PCM16ToFloat32(pcm []int16) []float32 {
	if len(pcm) == 0 {
		return nil
	}
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// PadSamples pads or truncates samples to exactly n, matching the fixed
// input length the encoder models expect.
func PadSamples(samples []float32, n int) []float32 {
	if len(samples) >= n {
		return samples[:n]
	}
	padded := make([]float32, n)
	copy(padded, samples)
	return padded
}

// SplitChunks cuts samples into fixed-size chunks, zero-padding the final
// partial chunk. Returns the chunks and the true total sample count.
func SplitChunks(samples []float32, chunkSize int) ([][]float32, int) {
	if chunkSize <= 0 || len(samples) == 0 {
		return nil, len(samples)
	}
	n := (len(samples) + chunkSize - 1) / chunkSize
	chunks := make([][]float32, 0, n)
	for start := 0; start < len(samples); start += chunkSize {
		end := start + chunkSize
		if end <= len(samples) {
			chunks = append(chunks, samples[start:end])
			continue
		}
		tail := make([]float32, chunkSize)
		copy(tail, samples[start:])
		chunks = append(chunks, tail)
	}
	return chunks, len(samples)
}
