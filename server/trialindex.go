package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TrialIndexReader reads the persisted trial-index file (§6): a single
// text file holding the current trial index as a decimal integer, read
// fresh each time the router synthesizes an mstart (§4.1 step 4).
type TrialIndexReader struct {
	path string
}

// NewTrialIndexReader builds a reader over the trial-index file at path.
func NewTrialIndexReader(path string) *TrialIndexReader {
	return &TrialIndexReader{path: path}
}

// Read returns the current trial index. It is the router.TrialIndex
// implementation the lifecycle manager wires into router.New.
func (r *TrialIndexReader) Read() (uint16, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return 0, fmt.Errorf("server: read trial index file %s: %w", r.path, err)
	}

	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("server: parse trial index file %s: %w", r.path, err)
	}
	return uint16(n), nil
}
