package progress

import (
	"testing"
	"time"
)

func TestHookSpeed(t *testing.T) {
	r := New(nil)
	h := r.NewHook("file.bin", 1000)
	defer h.Close()

	if h.Speed() != 0 {
		t.Error("fresh hook reports zero speed")
	}
	for i := 0; i < 5; i++ {
		h.Advance(100)
		time.Sleep(10 * time.Millisecond)
	}
	if h.Speed() <= 0 {
		t.Error("speed should be positive after advances")
	}
}

func TestHookUnknownTotal(t *testing.T) {
	r := New(nil)
	h := r.NewHook("stream.bin", -1)
	h.Advance(512)
	h.Close() // closing with bytes in flight is a no-op
}

func TestReporterCounters(t *testing.T) {
	r := New(nil)
	r.AddCompleted()
	r.AddCompleted()
	r.AddPreviouslyCompleted()
	r.AddSkipped()
	r.AddFailed()
	r.AddHashed()
	r.AddPrevHashed()
	r.AddRemoved()

	stats := r.Stats()
	if stats.Completed != 2 {
		t.Errorf("Completed = %d", stats.Completed)
	}
	if stats.PreviouslyDownloaded != 1 || stats.Skipped != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Hashed != 1 || stats.PrevHashed != 1 || stats.Removed != 1 {
		t.Errorf("hash stats = %+v", stats)
	}
}

func TestHookNameTruncated(t *testing.T) {
	r := New(nil)
	h := r.NewHook("an-extremely-long-filename-that-wont-fit-in-the-bar.mp4", 10)
	defer h.Close()
	// Only checks that construction with a long name is safe.
	h.Advance(10)
}
