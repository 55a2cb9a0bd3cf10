package timeline

import "testing"

func TestTimeline_TotalUserAudio(t *testing.T) {
	tl := New()
	tl.AddUserAudio(20)
	tl.AddUserAudio(20)
	tl.AddUserAudio(20)

	if got := tl.TotalUserAudio(); got != 60 {
		t.Errorf("TotalUserAudio() = %d, want 60", got)
	}
}

func TestTimeline_SilenceExcludedFromUserTotal(t *testing.T) {
	tl := New()
	tl.AddUserAudio(100)
	tl.AddSilence(800)
	tl.AddUserAudio(50)

	if got := tl.TotalUserAudio(); got != 150 {
		t.Errorf("TotalUserAudio() = %d, want 150", got)
	}
}

func TestTimeline_AudioDurationBefore(t *testing.T) {
	tl := New()
	tl.AddUserAudio(100)
	tl.AddSilence(200)
	tl.AddUserAudio(100)

	tests := []struct {
		name     string
		vendorMS int64
		want     int64
	}{
		{"zero", 0, 0},
		{"inside first user segment", 40, 40},
		{"at user/silence boundary", 100, 100},
		{"inside silence", 250, 100},
		{"inside second user segment", 350, 150},
		{"at stream end", 400, 200},
		{"past stream end", 10_000, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tl.AudioDurationBefore(tt.vendorMS); got != tt.want {
				t.Errorf("AudioDurationBefore(%d) = %d, want %d", tt.vendorMS, got, tt.want)
			}
		})
	}
}

func TestTimeline_AudioDurationBeforeMonotonic(t *testing.T) {
	tl := New()
	tl.AddUserAudio(35)
	tl.AddSilence(15)
	tl.AddUserAudio(80)
	tl.AddSilence(5)
	tl.AddUserAudio(10)

	var prev int64
	for ms := int64(0); ms <= 200; ms++ {
		got := tl.AudioDurationBefore(ms)
		if got < prev {
			t.Fatalf("AudioDurationBefore(%d) = %d, below previous %d", ms, got, prev)
		}
		prev = got
	}
}

func TestTimeline_ResetFoldsIntoCallerOffset(t *testing.T) {
	tl := New()
	tl.AddUserAudio(200)

	// The owning session folds the total into a persistent offset before
	// resetting, exactly as done here.
	var offset int64
	offset += tl.TotalUserAudio()
	tl.Reset()

	if got := tl.TotalUserAudio(); got != 0 {
		t.Errorf("TotalUserAudio() after reset = %d, want 0", got)
	}

	tl.AddUserAudio(50)

	// A vendor timestamp from the new epoch must land after everything
	// reported from the previous epoch.
	if got := tl.AudioDurationBefore(10) + offset; got < 200 {
		t.Errorf("post-reset corrected timestamp = %d, want >= 200", got)
	}
	if got := tl.AudioDurationBefore(50) + offset; got != 250 {
		t.Errorf("post-reset corrected timestamp = %d, want 250", got)
	}
}

func TestTimeline_SegmentMerging(t *testing.T) {
	tl := New()
	for range 1000 {
		tl.AddUserAudio(20)
	}
	tl.mu.Lock()
	n := len(tl.segments)
	tl.mu.Unlock()
	if n != 1 {
		t.Errorf("expected consecutive user segments to merge into 1, got %d", n)
	}
}

func TestTimeline_IgnoresNonPositiveDurations(t *testing.T) {
	tl := New()
	tl.AddUserAudio(0)
	tl.AddUserAudio(-5)
	if got := tl.TotalUserAudio(); got != 0 {
		t.Errorf("TotalUserAudio() = %d, want 0", got)
	}
}
