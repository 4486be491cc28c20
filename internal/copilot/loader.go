package copilot

import (
	"fmt"

	"github.com/sourcegraph/conc"
)

// LoadState reports the background roads-DB open progress.
type LoadState int

const (
	LoadNotStarted LoadState = iota
	LoadLoading
	LoadReady
	LoadFailed
)

// BackgroundLoader opens a roads DB off the UI thread so enabling
// CoPilot at runtime never blocks rendering, per §4.6.
type BackgroundLoader struct {
	wg    conc.WaitGroup
	state LoadState
	db    *RoadsDB
	err   error
	done  chan struct{}
}

// NewBackgroundLoader starts opening the roads DB at path immediately.
func NewBackgroundLoader(path string) *BackgroundLoader {
	l := &BackgroundLoader{state: LoadLoading, done: make(chan struct{})}
	l.wg.Go(func() {
		defer close(l.done)
		db, err := OpenRoadsDB(path)
		if err != nil {
			l.err = fmt.Errorf("loading roads db %s: %w", path, err)
			l.state = LoadFailed
			return
		}
		l.db = db
		l.state = LoadReady
	})
	return l
}

// State returns the current load state without blocking.
func (l *BackgroundLoader) State() LoadState { return l.state }

// Wait blocks until loading completes, returning the opened RoadsDB or
// the error encountered. Any panic inside the load goroutine is
// re-raised here via conc.WaitGroup.
func (l *BackgroundLoader) Wait() (*RoadsDB, error) {
	<-l.done
	l.wg.Wait()
	return l.db, l.err
}
