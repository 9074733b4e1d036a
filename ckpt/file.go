// Package ckpt persists run progress to disk so an interrupted run can
// resume where it left off. A checkpoint file holds a single record: the
// merged progress and the CPU time spent producing it.
package ckpt

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/shamaton/msgpack/v2"

	"github.com/canopy-dev/canopy/codec"
	"github.com/canopy-dev/canopy/mode"
)

// Record is one durable snapshot of a run.
type Record struct {
	Progress mode.Progress
	// CPUTime is the cumulative CPU seconds across all runs of this
	// exploration, kept exact so repeated resume cycles do not drift.
	CPUTime *big.Rat
}

type recordWire struct {
	Progress []byte
	CPUTime  string
}

// File reads and writes checkpoint records at a fixed path.
type File struct {
	Path string
}

// Write atomically replaces the checkpoint file with r, via a temporary
// file and rename in the same directory.
func (f *File) Write(r Record) error {
	data, err := codec.EncodeProgress(r.Progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	cpu := r.CPUTime
	if cpu == nil {
		cpu = new(big.Rat)
	}
	body, err := msgpack.Marshal(recordWire{Progress: data, CPUTime: cpu.RatString()})
	if err != nil {
		return fmt.Errorf("encode checkpoint record: %w", err)
	}
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(name, f.Path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Read loads the checkpoint record. A missing file yields (nil, nil): a
// fresh run.
func (f *File) Read() (*Record, error) {
	body, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var w recordWire
	if err := msgpack.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode checkpoint record: %w", err)
	}
	p, err := codec.DecodeProgress(w.Progress)
	if err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	cpu := new(big.Rat)
	if w.CPUTime != "" {
		if _, ok := cpu.SetString(w.CPUTime); !ok {
			return nil, fmt.Errorf("decode checkpoint record: bad cpu time %q", w.CPUTime)
		}
	}
	return &Record{Progress: p, CPUTime: cpu}, nil
}

// Remove deletes the checkpoint file. Called when a run completes, so a
// later invocation starts fresh instead of resuming a finished search.
func (f *File) Remove() error {
	err := os.Remove(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
