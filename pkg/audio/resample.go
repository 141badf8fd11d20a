package audio

// Resample converts mono int16 samples from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate (or either rate is invalid) the input
// is returned unchanged. Linear interpolation is sufficient here: the
// downstream speech models were trained on telephone-quality audio and do not
// benefit from a polyphase filter.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// DownmixStereo averages interleaved L/R int16 samples into mono. Uses int32
// arithmetic to prevent overflow; odd trailing samples are dropped.
func DownmixStereo(interleaved []int16) []int16 {
	frames := len(interleaved) / 2
	out := make([]int16, frames)
	for i := range frames {
		l := int32(interleaved[i*2])
		r := int32(interleaved[i*2+1])
		out[i] = int16((l + r) / 2)
	}
	return out
}
