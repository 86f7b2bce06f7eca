package audio

import (
	"encoding/binary"
	"math"
)

// Canonicalize converts little-endian PCM-16 mono audio recorded at fromRate
// into the canonical engine form. A trailing odd byte is dropped.
func Canonicalize(pcm []byte, fromRate int) []byte {
	if len(pcm)%BytesPerSample != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	if fromRate <= 0 || fromRate == SampleRate {
		return pcm
	}
	return Int16ToPCMBytes(ResampleInt16(PCMBytesToInt16(pcm), fromRate, SampleRate))
}

func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return input
	}

	ratio := float64(toRate) / float64(fromRate)
	output := make([]float32, int(math.Ceil(float64(len(input))*ratio)))

	for i := range output {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		switch {
		case srcIdx+1 < len(input):
			output[i] = input[srcIdx]*(1-frac) + input[srcIdx+1]*frac
		case srcIdx < len(input):
			output[i] = input[srcIdx]
		}
	}
	return output
}

func ResampleInt16(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		return samples
	}
	return Float32ToInt16(Resample(Int16ToFloat32(samples), fromRate, toRate))
}

func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func Int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / 32768.0
	}
	return result
}

func Float32ToInt16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		result[i] = int16(s * 32767.0)
	}
	return result
}
