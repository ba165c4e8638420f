package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestHidden(t *testing.T) {
	tests := map[string]bool{
		"/in/.talk-123.wav": true,
		".transcript.tmp":   true,
		"/in/talk.wav":      false,
		"/in/.sub/talk.wav": false,
	}
	for path, want := range tests {
		if got := hidden(path); got != want {
			t.Errorf("hidden(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFileWatcher_InboxKey(t *testing.T) {
	fw := NewFileWatcher(nil, "/srv/inbox", transcribe.CloudAPI, false, zerolog.Nop())
	tests := map[string]string{
		"/srv/inbox/talk.mp3":         "inbox/talk_transcription.txt",
		"/srv/inbox/2026/03/call.wav": "inbox/2026/03/call_transcription.txt",
		"/elsewhere/meeting.wav":      "inbox/meeting_transcription.txt",
	}
	for path, want := range tests {
		if got := fw.inboxKey(path); got != want {
			t.Errorf("inboxKey(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestFileWatcher_ProcessesNewAudio(t *testing.T) {
	p, store, _, _ := newTestPipeline(t, stubCloud{text: "novo"})
	dir := t.TempDir()

	fw := NewFileWatcher(p, dir, transcribe.CloudAPI, false, zerolog.Nop())
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	if s := fw.Status().Status; s != "watching" {
		t.Errorf("status = %q, want watching", s)
	}

	writeWav(t, filepath.Join(dir, "talk.wav"), 2)
	// ignored: document, hidden file, unsupported container
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644)
	writeWav(t, filepath.Join(dir, ".partial.wav"), 1)
	os.WriteFile(filepath.Join(dir, "talk.flac"), []byte("fLaC"), 0o644)

	ctx := context.Background()
	if !waitFor(t, 5*time.Second, func() bool { return store.Exists(ctx, "inbox/talk_transcription.txt") }) {
		t.Fatal("watched file was not transcribed")
	}
	if !waitFor(t, time.Second, func() bool { return fw.Status().FilesProcessed == 1 }) {
		t.Errorf("FilesProcessed = %d, want 1", fw.Status().FilesProcessed)
	}

	// give the debounce of the ignored files time to fire
	time.Sleep(2 * debounceDelay)
	st := fw.Status()
	if st.FilesProcessed != 1 || st.FilesFailed != 0 {
		t.Errorf("status = %+v, want 1 processed and 0 failed", st)
	}
	if store.Exists(ctx, "inbox/.partial_transcription.txt") {
		t.Error("hidden file was transcribed")
	}
}

func TestFileWatcher_Backfill(t *testing.T) {
	p, store, _, _ := newTestPipeline(t, stubCloud{text: "antigo"})
	dir := t.TempDir()
	writeWav(t, filepath.Join(dir, "old.wav"), 1)
	writeWav(t, filepath.Join(dir, "done.wav"), 1)

	ctx := context.Background()
	if err := store.Save(ctx, "inbox/done_transcription.txt", []byte("already"), "text/plain"); err != nil {
		t.Fatal(err)
	}

	fw := NewFileWatcher(p, dir, transcribe.CloudAPI, true, zerolog.Nop())
	if err := fw.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	if !waitFor(t, 5*time.Second, func() bool { return fw.Status().FilesProcessed == 1 }) {
		t.Fatalf("status = %+v, want 1 processed", fw.Status())
	}
	if !store.Exists(ctx, "inbox/old_transcription.txt") {
		t.Error("backfilled file not stored")
	}
	if got := readStored(t, store, "inbox/done_transcription.txt"); got != "already" {
		t.Errorf("existing transcript overwritten: %q", got)
	}
	if fw.Status().FilesSkipped != 1 {
		t.Errorf("FilesSkipped = %d, want 1", fw.Status().FilesSkipped)
	}
	if s := fw.Status().Status; s != "watching" {
		t.Errorf("status = %q, want watching", s)
	}
}

func TestFileWatcher_StopIsIdempotentBeforeStart(t *testing.T) {
	fw := NewFileWatcher(nil, t.TempDir(), transcribe.CloudAPI, false, zerolog.Nop())
	fw.Stop()
	if s := fw.Status().Status; s != "stopped" {
		t.Errorf("status = %q, want stopped", s)
	}
}

func readStored(t *testing.T, store *storage.LocalStore, key string) string {
	t.Helper()
	data, err := os.ReadFile(store.Path(key))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
