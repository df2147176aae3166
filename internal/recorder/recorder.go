// Package recorder keeps a black-box record of every decision cycle: the telemetry that
// went in and the lights, conflicts and health that came out. Files are msgpack streams
// compressed with zstd, one per UTC day.
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yegors/co-rwsl/internal/rwsl"
	"github.com/yegors/co-rwsl/pkg/logger"
)

// CycleRecord is one recorded decision cycle
type CycleRecord struct {
	Time      time.Time                  `msgpack:"t"`
	Snapshots []rwsl.AircraftSnapshot    `msgpack:"in"`
	Lights    map[string]rwsl.LightState `msgpack:"lights"`
	Conflicts []rwsl.ConflictEvent       `msgpack:"conflicts"`
	Health    rwsl.Health                `msgpack:"health"`
}

// FilePath returns the recording file for the given day
func FilePath(dir string, day time.Time) string {
	return filepath.Join(dir, "cycle-"+day.UTC().Format("2006-01-02")+".msgpack.zst")
}

// Recorder appends cycle records to the current day's file. Each process run (and
// each day) adds a new zstd frame to the file.
type Recorder struct {
	dir   string
	level zstd.EncoderLevel
	log   *logger.Logger

	mu   sync.Mutex
	day  string
	file *os.File
	zw   *zstd.Encoder
	enc  *msgpack.Encoder
	n    int
}

// New creates a recorder writing into dir. level runs from 1 (fastest) to 4 (best).
func New(dir string, level int, log *logger.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recorder directory: %w", err)
	}
	if level < int(zstd.SpeedFastest) || level > int(zstd.SpeedBestCompression) {
		level = int(zstd.SpeedFastest)
	}
	return &Recorder{
		dir:   dir,
		level: zstd.EncoderLevel(level),
		log:   log.Named("recorder"),
	}, nil
}

// Record appends one cycle, switching files when the UTC day changes
func (r *Recorder) Record(rec CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := rec.Time.UTC().Format("2006-01-02")
	if r.enc == nil || day != r.day {
		if err := r.rotate(rec.Time, day); err != nil {
			return err
		}
	}
	if err := r.enc.Encode(&rec); err != nil {
		return fmt.Errorf("failed to encode cycle record: %w", err)
	}
	r.n++
	return nil
}

// Flush pushes buffered records to disk without ending the frame
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zw == nil {
		return nil
	}
	if err := r.zw.Flush(); err != nil {
		return fmt.Errorf("failed to flush recorder: %w", err)
	}
	return nil
}

// Close ends the current frame and closes the file
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Recorder) rotate(t time.Time, day string) error {
	if err := r.closeLocked(); err != nil {
		return err
	}

	path := FilePath(r.dir, t)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open recording %s: %w", path, err)
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(r.level))
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	r.file, r.zw, r.enc, r.day, r.n = f, zw, msgpack.NewEncoder(zw), day, 0
	r.log.Info("Recording cycles", logger.String("path", path))
	return nil
}

func (r *Recorder) closeLocked() error {
	if r.zw == nil {
		return nil
	}
	var errs []error
	if err := r.zw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close zstd writer: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close recording: %w", err))
	}
	r.log.Debug("Closed recording", logger.String("day", r.day), logger.Int("records", r.n))
	r.file, r.zw, r.enc = nil, nil, nil
	return errors.Join(errs...)
}

// Reader iterates the records of one recording file
type Reader struct {
	file *os.File
	zr   *zstd.Decoder
	dec  *msgpack.Decoder
}

// OpenReader opens a recording for reading
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	zr, err := zstd.NewReader(bufio.NewReader(f), zstd.WithDecoderConcurrency(0))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &Reader{file: f, zr: zr, dec: msgpack.NewDecoder(zr)}, nil
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (CycleRecord, error) {
	var rec CycleRecord
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return CycleRecord{}, io.EOF
		}
		return CycleRecord{}, fmt.Errorf("failed to decode cycle record: %w", err)
	}
	return rec, nil
}

// Close releases the reader
func (r *Reader) Close() error {
	r.zr.Close()
	return r.file.Close()
}

// ReadAll returns every record in a recording
func ReadAll(path string) ([]CycleRecord, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []CycleRecord
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
