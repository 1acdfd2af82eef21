package progress

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/wtstate/internal/errors"
	"github.com/Iron-Ham/wtstate/internal/statedir"
)

// watchDebounce coalesces the burst of events one atomic write produces.
const watchDebounce = 50 * time.Millisecond

// Watch calls fn with the current document, then again after every change
// to workflow.json, until ctx is done. Removal of the file delivers the
// default document. fn runs on the calling goroutine.
func (l *Ledger) Watch(ctx context.Context, fn func(*Progress)) error {
	st, err := l.dirs.Resolve(ctx)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	// Watch the directory; the file itself is replaced on every write.
	if err := watcher.Add(st.Dir); err != nil {
		return errors.NewStateError("failed to watch state directory", err).WithPath(st.Dir)
	}

	deliver := func() error {
		p, err := l.read(st)
		if err != nil {
			return err
		}
		fn(p)
		return nil
	}
	if err := deliver(); err != nil {
		return err
	}

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != statedir.ProgressFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			if err := deliver(); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("progress watcher error", "error", err)
		}
	}
}
