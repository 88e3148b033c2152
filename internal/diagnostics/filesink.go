package diagnostics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/psantana5/fnhost/pkg/logging"
)

// TimestampFormat prefixes every file line, always in UTC.
const TimestampFormat = "2006-01-02T15:04:05.000"

// PrimaryOracle reports whether this process is the primary instance.
type PrimaryOracle func() bool

// FileSinkConfig configures the per-category file sink.
type FileSinkConfig struct {
	Root          string
	InstanceID    string
	MinLevel      logging.Level
	MaxFileSize   int64
	FlushInterval time.Duration
	IsPrimary     PrimaryOracle
	// OnError observes write failures; delivery itself never fails.
	OnError func(error)
}

// FileSink writes routed categories to one text stream per derived path.
type FileSink struct {
	cfg     FileSinkConfig
	writers sync.Map // lower-cased relative path -> *fileWriter
	closed  atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewFileSink creates the sink and starts its periodic flush loop.
func NewFileSink(cfg FileSinkConfig) *FileSink {
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	s := &FileSink{
		cfg:  cfg,
		stop: make(chan struct{}),
	}
	if cfg.FlushInterval > 0 {
		s.wg.Add(1)
		go s.flushLoop()
	}
	return s
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "host"
	}
	return host
}

func (s *FileSink) isPrimary() bool {
	if s.cfg.IsPrimary == nil {
		return false
	}
	return s.cfg.IsPrimary()
}

// Write implements logging.Sink.
func (s *FileSink) Write(e logging.Event) {
	if s.closed.Load() || e.Level < s.cfg.MinLevel {
		return
	}
	rel, ok := FilePath(e.Category)
	if !ok {
		return
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return
	}
	if e.Bool(logging.PropSystemTrace) {
		return
	}
	if e.Bool(logging.PropPrimaryHostOnly) && !s.isPrimary() {
		return
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := ts.UTC().Format(TimestampFormat) + " " + msg
	flush := e.Level >= logging.ERROR || e.Err != nil

	if err := s.writer(rel).AppendLine(line, flush); err != nil {
		s.cfg.OnError(err)
	}
}

func (s *FileSink) writer(rel string) *fileWriter {
	key := strings.ToLower(rel)
	if w, ok := s.writers.Load(key); ok {
		return w.(*fileWriter)
	}
	full := filepath.Join(s.cfg.Root, filepath.FromSlash(rel), s.cfg.InstanceID+".log")
	w, _ := s.writers.LoadOrStore(key, newFileWriter(full, s.cfg.MaxFileSize))
	return w.(*fileWriter)
}

// LogFile returns the file a category is written to, if it has a route.
func (s *FileSink) LogFile(category string) (string, bool) {
	rel, ok := FilePath(category)
	if !ok {
		return "", false
	}
	return s.writer(rel).path, true
}

// Flush flushes every open writer.
func (s *FileSink) Flush() error {
	var err error
	s.writers.Range(func(_, v interface{}) bool {
		err = multierr.Append(err, v.(*fileWriter).Flush())
		return true
	})
	return err
}

func (s *FileSink) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.cfg.OnError(err)
			}
		}
	}
}

// Close stops the flush loop and closes every writer. Writes after Close
// are dropped.
func (s *FileSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stop)
	s.wg.Wait()

	var err error
	s.writers.Range(func(_, v interface{}) bool {
		err = multierr.Append(err, v.(*fileWriter).Close())
		return true
	})
	return err
}
