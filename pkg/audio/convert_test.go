package audio_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/cogniscribe/pkg/audio"
)

func pcm(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func samples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func equalSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length: got %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()
	equalSamples(t, samples(audio.MonoToStereo(pcm(100, 200, 300))), []int16{100, 100, 200, 200, 300, 300})
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	equalSamples(t, samples(audio.StereoToMono(pcm(100, 200, -100, -200))), []int16{150, -150})
}

func TestStereoToMono_Extremes(t *testing.T) {
	t.Parallel()
	equalSamples(t, samples(audio.StereoToMono(pcm(32767, 32767, -32768, -32768))), []int16{32767, -32768})
}

func TestStereoToMono_TrailingPartialFrame(t *testing.T) {
	t.Parallel()
	in := append(pcm(10, 20), 0x01, 0x02)
	equalSamples(t, samples(audio.StereoToMono(in)), []int16{15})
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		in            []byte
		src, dst      int
		wantLen       int
		wantUnchanged bool
	}{
		{name: "same rate", in: pcm(1, 2, 3, 4), src: 16000, dst: 16000, wantLen: 4, wantUnchanged: true},
		{name: "upsample x2", in: pcm(0, 100, 200, 300), src: 8000, dst: 16000, wantLen: 8},
		{name: "downsample 48k to 16k", in: make([]byte, 960*2), src: 48000, dst: 16000, wantLen: 320},
		{name: "zero src rate", in: pcm(1, 2), src: 0, dst: 16000, wantLen: 2, wantUnchanged: true},
		{name: "zero dst rate", in: pcm(1, 2), src: 16000, dst: 0, wantLen: 2, wantUnchanged: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out := audio.ResampleMono16(tc.in, tc.src, tc.dst)
			if got := len(out) / 2; got != tc.wantLen {
				t.Errorf("samples = %d, want %d", got, tc.wantLen)
			}
			if tc.wantUnchanged && &out[0] != &tc.in[0] {
				t.Error("expected input returned unchanged")
			}
		})
	}
}

func TestResampleMono16_Interpolates(t *testing.T) {
	t.Parallel()
	// 0,100 upsampled 2x gives 0,50,100,100 (last sample held).
	equalSamples(t, samples(audio.ResampleMono16(pcm(0, 100), 8000, 16000)), []int16{0, 50, 100, 100})
}

func TestConverter(t *testing.T) {
	t.Parallel()

	target := audio.Format{SampleRate: 16000, Channels: 1}

	t.Run("no-op", func(t *testing.T) {
		t.Parallel()
		c := audio.Converter{Target: target}
		in := audio.AudioFrame{Data: pcm(1, 2), SampleRate: 16000, Channels: 1, Timestamp: time.Second}
		out := c.Convert(in)
		if &out.Data[0] != &in.Data[0] || out.Timestamp != time.Second {
			t.Error("matching frame should pass through")
		}
	})

	t.Run("stereo 32k to mono 16k", func(t *testing.T) {
		t.Parallel()
		c := audio.Converter{Target: target}
		// Four stereo frames at 32 kHz: two mono frames at 16 kHz.
		in := audio.AudioFrame{Data: pcm(10, 30, 10, 30, 50, 70, 50, 70), SampleRate: 32000, Channels: 2}
		out := c.Convert(in)
		if out.SampleRate != 16000 || out.Channels != 1 {
			t.Fatalf("format = %d/%d", out.SampleRate, out.Channels)
		}
		equalSamples(t, samples(out.Data), []int16{20, 60})
	})

	t.Run("mono to stereo", func(t *testing.T) {
		t.Parallel()
		c := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 2}}
		out := c.Convert(audio.AudioFrame{Data: pcm(7), SampleRate: 16000, Channels: 1})
		equalSamples(t, samples(out.Data), []int16{7, 7})
	})

	t.Run("odd byte count", func(t *testing.T) {
		t.Parallel()
		c := audio.Converter{Target: target}
		out := c.Convert(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
		if out.Data != nil {
			t.Error("misaligned frame should yield nil data")
		}
	})
}

func TestConvertStream(t *testing.T) {
	t.Parallel()

	in := make(chan audio.AudioFrame, 3)
	in <- audio.AudioFrame{Data: pcm(1, 1, 3, 3), SampleRate: 16000, Channels: 2}
	in <- audio.AudioFrame{Data: []byte{9}, SampleRate: 16000, Channels: 2}
	in <- audio.AudioFrame{Data: pcm(5, 5), SampleRate: 16000, Channels: 2}
	close(in)

	var got []int16
	for f := range audio.ConvertStream(context.Background(), in, audio.Format{SampleRate: 16000, Channels: 1}) {
		got = append(got, samples(f.Data)...)
	}
	equalSamples(t, got, []int16{1, 3, 5})
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	n := f.FrameBytes(20 * time.Millisecond)
	if n != 640 {
		t.Fatalf("FrameBytes = %d, want 640", n)
	}
	fr := audio.AudioFrame{Data: make([]byte, n), SampleRate: 16000, Channels: 1}
	if d := fr.Duration(); d != 20*time.Millisecond {
		t.Errorf("Duration = %v", d)
	}
	if got := f.String(); got != "16000Hz mono" {
		t.Errorf("String = %q", got)
	}
}
