// Package audit keeps a tamper-evident journal of vault operations.
// Entries record what happened, never key names or values; each entry's
// hash chains over the previous one so out-of-band edits are detectable.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Entry struct {
	TS   int64  `json:"ts"`
	What string `json:"what"`
	Hash string `json:"hash"`
}

// Journal is an append-only JSON-lines file beside the vault container.
type Journal struct {
	path     string
	lastHash []byte
	entries  []Entry
}

// Open loads the journal at path, creating an empty one if absent.
func Open(path string) (*Journal, error) {
	j := &Journal{path: path}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return j, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("audit: malformed journal line: %w", err)
		}
		j.entries = append(j.entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n := len(j.entries); n > 0 {
		sum, err := hex.DecodeString(j.entries[n-1].Hash)
		if err != nil {
			return nil, fmt.Errorf("audit: malformed chain hash: %w", err)
		}
		j.lastHash = sum
	}
	return j, nil
}

// Append records an operation and persists it immediately.
func (j *Journal) Append(what string) (Entry, error) {
	h := sha256.New()
	h.Write(j.lastHash)
	h.Write([]byte(what))
	sum := h.Sum(nil)

	e := Entry{TS: time.Now().Unix(), What: what, Hash: hex.EncodeToString(sum)}
	line, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return Entry{}, err
	}

	j.lastHash = sum
	j.entries = append(j.entries, e)
	return e, nil
}

// Verify walks the chain from the start and reports the first break.
func (j *Journal) Verify() error {
	var prev []byte
	for i, e := range j.entries {
		h := sha256.New()
		h.Write(prev)
		h.Write([]byte(e.What))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("audit: chain broken at entry %d", i)
		}
		prev = sum
	}
	return nil
}

func (j *Journal) Entries() []Entry { return append([]Entry(nil), j.entries...) }
