// Package results reads the result envelopes the Profit Engine worker drops
// into a shared directory and keeps the newest one at hand.
package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf16"
)

// Result file naming used by the worker.
const (
	FilePrefix = "profit-engine_result_"
	FileSuffix = ".json"
)

const (
	StatusEmpty = "empty"
	StatusOK    = "ok"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Result is the outcome of one directory scan. Raw is the envelope exactly as
// the worker wrote it, minus any BOM; Envelope is a typed view of it.
type Result struct {
	Status      string
	Dir         string
	File        string
	FullPath    string
	Files       []string
	Raw         json.RawMessage
	Envelope    *Envelope
	ModTime     time.Time
	RawLength   int
	StrippedBOM bool
}

// Reader scans Dir for result envelopes.
type Reader struct {
	Dir string
}

// NewReader returns a reader for dir.
func NewReader(dir string) *Reader {
	return &Reader{Dir: dir}
}

// IsResultFile reports whether name follows the result file naming.
func IsResultFile(name string) bool {
	return strings.HasPrefix(name, FilePrefix) && strings.HasSuffix(name, FileSuffix)
}

// Latest returns the most recently modified envelope. A directory without
// result files yields StatusEmpty; a missing directory is an error.
func (r *Reader) Latest() (*Result, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, err
	}

	res := &Result{Status: StatusEmpty, Dir: r.Dir, Files: []string{}}
	var latestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !IsResultFile(e.Name()) {
			continue
		}
		res.Files = append(res.Files, e.Name())

		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		if res.File == "" || info.ModTime().After(latestMod) {
			res.File = e.Name()
			latestMod = info.ModTime()
		}
	}
	if res.File == "" {
		return res, nil
	}

	res.FullPath = filepath.Join(r.Dir, res.File)
	res.ModTime = latestMod
	raw, err := os.ReadFile(res.FullPath)
	if err != nil {
		return nil, err
	}
	stripped := bytes.TrimPrefix(raw, utf8BOM)
	res.StrippedBOM = len(stripped) != len(raw)
	res.RawLength = textLength(raw)

	var doc json.RawMessage
	if err := json.Unmarshal(stripped, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", res.File, err)
	}
	res.Raw = doc
	res.Envelope = decodeView(doc)
	res.Status = StatusOK
	return res, nil
}

// textLength counts UTF-16 code units, the length a browser reports for the
// same text, BOM included.
func textLength(raw []byte) int {
	n := 0
	for _, r := range string(raw) {
		n += utf16.RuneLen(r)
	}
	return n
}
