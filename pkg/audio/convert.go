package audio

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
)

// Converter converts frames to a target format. It logs once on the first
// format mismatch and once on the first misaligned frame. Create one per
// stream.
type Converter struct {
	Target Format

	mismatch sync.Once
	corrupt  sync.Once
}

// Convert returns frame in the target format. Frames already in the target
// format are returned unchanged. A frame whose byte count is not a whole
// number of samples yields a frame with nil Data.
func (c *Converter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.corrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM frame, dropping", "bytes", len(frame.Data))
		})
		return AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}
	src := Format{SampleRate: frame.SampleRate, Channels: frame.Channels}
	if src == c.Target {
		return frame
	}
	c.mismatch.Do(func() {
		slog.Info("audio: converting stream", "from", src.String(), "to", c.Target.String())
	})

	samples := decode(frame.Data)

	// Downmix before resampling so that only one channel is resampled.
	if src.Channels == 2 && c.Target.Channels == 1 {
		samples = downmix(samples)
		src.Channels = 1
	}
	if src.SampleRate != c.Target.SampleRate {
		samples = resample(samples, src.Channels, src.SampleRate, c.Target.SampleRate)
	}
	if src.Channels == 1 && c.Target.Channels == 2 {
		samples = upmix(samples)
	}

	return AudioFrame{
		Data:       encode(samples),
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream converts every frame from in to target on a new goroutine.
// The returned channel is closed when in is closed or ctx is cancelled.
// Frames that convert to no data are dropped.
func ConvertStream(ctx context.Context, in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := Converter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			select {
			case out <- converted:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate by linear
// interpolation. Non-positive or equal rates return pcm unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	return encode(resample(decode(pcm), 1, srcRate, dstRate))
}

// StereoToMono averages each L/R pair of 16-bit stereo PCM.
func StereoToMono(pcm []byte) []byte {
	return encode(downmix(decode(pcm[:len(pcm)/4*4])))
}

// MonoToStereo duplicates each 16-bit mono sample into both channels.
func MonoToStereo(pcm []byte) []byte {
	return encode(upmix(decode(pcm)))
}

func decode(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func encode(samples []int16) []byte {
	if len(samples) == 0 {
		return nil
	}
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func downmix(stereo []int16) []int16 {
	out := make([]int16, len(stereo)/2)
	for i := range out {
		// int32 sum cannot overflow and the mean of two int16 fits int16.
		out[i] = int16((int32(stereo[2*i]) + int32(stereo[2*i+1])) / 2)
	}
	return out
}

func upmix(mono []int16) []int16 {
	out := make([]int16, 2*len(mono))
	for i, s := range mono {
		out[2*i], out[2*i+1] = s, s
	}
	return out
}

// resample converts interleaved samples with the given channel count.
func resample(in []int16, channels, srcRate, dstRate int) []int16 {
	if channels < 1 {
		channels = 1
	}
	srcFrames := len(in) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}
	out := make([]int16, dstFrames*channels)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			a := float64(in[idx*channels+ch])
			b := float64(in[next*channels+ch])
			out[i*channels+ch] = int16(a + (b-a)*frac)
		}
	}
	return out
}
