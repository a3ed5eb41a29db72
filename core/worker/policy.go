package worker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloudsync/core/backend"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen is the number of leading bytes inspected for MIME detection.
const sniffLen = 3072

// Policy rejects uploads by file extension or detected MIME type.
type Policy struct {
	BlockedExtensions []string
	BlockedMimeTypes  []string
}

// CheckName rejects blocked extensions before any byte is read.
func (p Policy) CheckName(target []string) error {
	if len(target) == 0 || len(p.BlockedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(path.Ext(target[len(target)-1]))
	if ext == "" {
		return nil
	}
	for _, blocked := range p.BlockedExtensions {
		b := strings.ToLower(strings.TrimSpace(blocked))
		if !strings.HasPrefix(b, ".") {
			b = "." + b
		}
		if ext == b {
			return backend.E(backend.CodePolicy, "upload", target, fmt.Errorf("file extension %s is blocked", ext))
		}
	}
	return nil
}

// CheckContent sniffs the MIME type from the start of r. It returns a
// reader yielding the complete stream, sniffed bytes included.
func (p Policy) CheckContent(target []string, r io.Reader) (io.Reader, error) {
	if len(p.BlockedMimeTypes) == 0 {
		return r, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	for _, blocked := range p.BlockedMimeTypes {
		if detected.Is(strings.TrimSpace(blocked)) {
			return nil, backend.E(backend.CodePolicy, "upload", target, fmt.Errorf("mime type %s is blocked", detected.String()))
		}
	}
	return io.MultiReader(bytes.NewReader(head), r), nil
}
