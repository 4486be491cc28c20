package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// dailyFileWriter wraps a lumberjack.Logger and swaps its target
// filename at local-midnight boundaries, giving the
// logs/opentpt_YYYYMMDD.log naming §6 requires on top of lumberjack's
// size/age rotation within a given day.
type dailyFileWriter struct {
	mu                                sync.Mutex
	dir                               string
	day                               string
	maxSizeMB, maxBackups, maxAgeDays int
	cur                               io.Writer
}

func newDailyFileWriter(dir string, maxSizeMB, maxBackups, maxAgeDays int) *dailyFileWriter {
	w := &dailyFileWriter{dir: dir, maxSizeMB: maxSizeMB, maxBackups: maxBackups, maxAgeDays: maxAgeDays}
	w.rollTo(today())
	return w
}

func today() string { return time.Now().Format("20060102") }

func (w *dailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if d := today(); d != w.day {
		w.rollTo(d)
	}
	cur := w.cur
	w.mu.Unlock()
	return cur.Write(p)
}

func (w *dailyFileWriter) rollTo(day string) {
	w.day = day
	name := fmt.Sprintf("opentpt_%s.log", day)
	w.cur = lumberjackFor(w.dir, name, w.maxSizeMB, w.maxBackups, w.maxAgeDays)
}
