package transcribe

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestSplitFrames(t *testing.T) {
	tests := []struct {
		total, size int
		wantCount   int
		wantLast    int
	}{
		{0, 10, 0, 0},
		{5, 10, 1, 5},
		{10, 10, 1, 10},
		{11, 10, 2, 1},
		{25, 10, 3, 5},
		{30, 10, 3, 10},
	}
	for _, tt := range tests {
		windows := SplitFrames(tt.total, tt.size)
		if len(windows) != tt.wantCount {
			t.Errorf("SplitFrames(%d, %d) = %d windows, want %d", tt.total, tt.size, len(windows), tt.wantCount)
			continue
		}
		if tt.wantCount == 0 {
			continue
		}
		last := windows[len(windows)-1]
		if got := last.End - last.Start; got != tt.wantLast {
			t.Errorf("SplitFrames(%d, %d) last window = %d frames, want %d", tt.total, tt.size, got, tt.wantLast)
		}
		for i, w := range windows {
			if w.Index != i {
				t.Errorf("window %d has Index %d", i, w.Index)
			}
			if i > 0 && w.Start != windows[i-1].End {
				t.Errorf("window %d starts at %d, previous ends at %d", i, w.Start, windows[i-1].End)
			}
		}
		if last.End != tt.total {
			t.Errorf("last window ends at %d, want %d", last.End, tt.total)
		}
	}
}

func TestFramesFor(t *testing.T) {
	if got := framesFor(3*time.Minute, 16000); got != 2880000 {
		t.Errorf("framesFor(3m, 16000) = %d, want 2880000", got)
	}
	if got := framesFor(time.Microsecond, 100); got != 1 {
		t.Errorf("framesFor(1us, 100) = %d, want 1", got)
	}
}

func TestPCM_Duration(t *testing.T) {
	p := PCM{SampleRate: 100, Channels: 2, BitDepth: 16, Data: make([]int, 9000*2)}
	if p.Frames() != 9000 {
		t.Errorf("Frames = %d, want 9000", p.Frames())
	}
	if p.Seconds() != 90 {
		t.Errorf("Seconds = %v, want 90", p.Seconds())
	}
	if p.Duration() != 90*time.Second {
		t.Errorf("Duration = %v, want 1m30s", p.Duration())
	}
	if (PCM{}).Frames() != 0 || (PCM{}).Seconds() != 0 {
		t.Error("zero PCM should have no frames")
	}
}

func TestReadWav(t *testing.T) {
	path := writeWav(t, t.TempDir(), "talk.wav", 3)
	pcm, err := ReadWav(path)
	if err != nil {
		t.Fatalf("ReadWav: %v", err)
	}
	if pcm.SampleRate != testRate || pcm.Channels != 1 || pcm.BitDepth != 16 {
		t.Errorf("format = %d Hz, %d ch, %d bit", pcm.SampleRate, pcm.Channels, pcm.BitDepth)
	}
	if pcm.Frames() != 300 {
		t.Errorf("Frames = %d, want 300", pcm.Frames())
	}
	if pcm.Data[1] != -99 {
		t.Errorf("Data[1] = %d, want -99", pcm.Data[1])
	}
}

func TestMonoPCM16(t *testing.T) {
	stereo := PCM{SampleRate: 8000, Channels: 2, BitDepth: 16, Data: []int{100, 300, -50, -150}}
	out := stereo.MonoPCM16()
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if v := int16(binary.LittleEndian.Uint16(out[0:])); v != 200 {
		t.Errorf("sample 0 = %d, want 200", v)
	}
	if v := int16(binary.LittleEndian.Uint16(out[2:])); v != -100 {
		t.Errorf("sample 1 = %d, want -100", v)
	}

	wide := PCM{SampleRate: 8000, Channels: 1, BitDepth: 24, Data: []int{0x010000}}
	if v := int16(binary.LittleEndian.Uint16(wide.MonoPCM16())); v != 0x0100 {
		t.Errorf("24-bit sample = %#x, want 0x100", v)
	}

	unsigned := PCM{SampleRate: 8000, Channels: 1, BitDepth: 8, Data: []int{128, 255}}
	out = unsigned.MonoPCM16()
	if v := int16(binary.LittleEndian.Uint16(out[0:])); v != 0 {
		t.Errorf("8-bit midpoint = %d, want 0", v)
	}
	if v := int16(binary.LittleEndian.Uint16(out[2:])); v != 127<<8 {
		t.Errorf("8-bit max = %d, want %d", v, 127<<8)
	}
}
