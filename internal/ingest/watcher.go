package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/transcribe"
)

const debounceDelay = 500 * time.Millisecond

// WatcherStatus is the watcher state reported by the health endpoint.
type WatcherStatus struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesFailed    int64  `json:"files_failed"`
	FilesSkipped   int64  `json:"files_skipped"`
}

// FileWatcher monitors an inbox directory for new audio files and runs them
// through the Pipeline one at a time.
type FileWatcher struct {
	pipeline *Pipeline
	watchDir string
	backend  transcribe.Backend
	backfill bool
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	jobs    chan string
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesFailed    atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFileWatcher creates a watcher for dir. When backfill is set, audio
// files already present whose transcript is missing from the store are
// queued on Start.
func NewFileWatcher(p *Pipeline, dir string, backend transcribe.Backend, backfill bool, log zerolog.Logger) *FileWatcher {
	fw := &FileWatcher{
		pipeline:       p,
		watchDir:       dir,
		backend:        backend,
		backfill:       backfill,
		log:            log.With().Str("component", "watcher").Logger(),
		jobs:           make(chan string, 64),
		debounceTimers: make(map[string]*time.Timer),
	}
	fw.status.Store("starting")
	return fw
}

// Start adds every directory under the watch dir to fsnotify and starts the
// event loop and the transcription worker.
func (fw *FileWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	dirCount := 0
	err = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if path != fw.watchDir && hidden(path) {
				return filepath.SkipDir
			}
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.watchDir).
		Str("backend", fw.backend.String()).
		Msg("file watcher initialized")

	ctx, fw.cancel = context.WithCancel(ctx)

	fw.wg.Add(2)
	go fw.watchLoop(ctx)
	go fw.worker(ctx)

	if fw.backfill {
		fw.wg.Add(1)
		go fw.runBackfill(ctx)
	} else {
		fw.status.Store("watching")
	}
	return nil
}

// Stop closes the fsnotify watcher and waits for the current job to finish.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.wg.Wait()
	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_failed", fw.filesFailed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *WatcherStatus {
	s, _ := fw.status.Load().(string)
	return &WatcherStatus{
		Status:         s,
		WatchDir:       fw.watchDir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesFailed:    fw.filesFailed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
	}
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer fw.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if hidden(event.Name) {
				continue
			}

			// New directory: watch it so files dropped into subfolders are seen.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if Route(event.Name) != KindAudio {
				continue
			}
			fw.scheduleProcess(ctx, event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces a file by 500ms so it is fully written before
// the worker picks it up.
func (fw *FileWatcher) scheduleProcess(ctx context.Context, path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(debounceDelay)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(debounceDelay, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		fw.enqueue(ctx, path)
	})
}

func (fw *FileWatcher) enqueue(ctx context.Context, path string) bool {
	select {
	case <-ctx.Done():
		return false
	case fw.jobs <- path:
		return true
	}
}

func (fw *FileWatcher) worker(ctx context.Context) {
	defer fw.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-fw.jobs:
			fw.processFile(ctx, path)
		}
	}
}

func (fw *FileWatcher) processFile(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		fw.filesSkipped.Add(1)
		return
	}

	res, err := fw.pipeline.Process(ctx, Job{
		Path:    path,
		Backend: fw.backend,
		Key:     fw.inboxKey(path),
	})
	if err != nil {
		fw.filesFailed.Add(1)
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to transcribe watched file")
		return
	}
	fw.filesProcessed.Add(1)
	fw.log.Debug().Str("path", path).Str("key", res.TranscriptKey).Msg("watched file transcribed")
}

// inboxKey mirrors the file's location under the watch dir so a backfill can
// tell which files already have a transcript.
func (fw *FileWatcher) inboxKey(path string) string {
	rel, err := filepath.Rel(fw.watchDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return "inbox/" + filepath.ToSlash(filepath.Join(filepath.Dir(rel), TranscriptKey(rel)))
}

// runBackfill queues audio files already in the watch dir whose transcript
// is not in the store yet, oldest first.
func (fw *FileWatcher) runBackfill(ctx context.Context) {
	defer fw.wg.Done()
	fw.status.Store("backfilling")
	start := time.Now()

	type fileEntry struct {
		path  string
		mtime time.Time
	}
	var files []fileEntry

	_ = filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != fw.watchDir && hidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden(path) || Route(path) != KindAudio {
			return nil
		}
		if fw.pipeline.Store().Exists(ctx, fw.inboxKey(path)) {
			fw.filesSkipped.Add(1)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileEntry{path: path, mtime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.Before(files[j].mtime)
	})

	fw.log.Info().Int("files", len(files)).Msg("backfill starting")

	queued := 0
	for _, f := range files {
		if !fw.enqueue(ctx, f.path) {
			fw.log.Info().Int("queued", queued).Msg("backfill interrupted by shutdown")
			return
		}
		queued++
	}

	fw.status.CompareAndSwap("backfilling", "watching")
	fw.log.Info().
		Int("queued", queued).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}

// hidden reports whether the base name is a dotfile. Converted waveforms are
// written as hidden siblings, so they never trigger a job.
func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
