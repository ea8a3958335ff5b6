package workload

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultLogLines is the number of log lines kept per job.
const DefaultLogLines = 200

// LogTail is a logrus hook keeping the last lines logged.
type LogTail struct {
	mu        sync.Mutex
	max       int
	lines     []string
	formatter logrus.Formatter
}

// NewLogTail returns a LogTail holding at most max lines.
func NewLogTail(max int) *LogTail {
	if max <= 0 {
		max = DefaultLogLines
	}
	return &LogTail{
		max:       max,
		formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
	}
}

func (t *LogTail) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (t *LogTail) Fire(entry *logrus.Entry) error {
	formatted, err := t.formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(formatted), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			t.Append(line)
		}
	}
	return nil
}

// Append adds a line, dropping the oldest one when full.
func (t *LogTail) Append(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = append(t.lines[:0:0], t.lines[len(t.lines)-t.max:]...)
	}
}

// Lines returns a copy of the kept lines, oldest first.
func (t *LogTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}
