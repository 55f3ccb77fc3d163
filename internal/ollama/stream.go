package ollama

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// maxLineBytes caps a single NDJSON record. Pull and generate records are tiny;
// this only guards against a runaway body without newlines.
const maxLineBytes = 4 * 1024 * 1024

// Stream is a forward-only iterator over the newline-delimited records of a
// streamed daemon response. It yields raw, non-empty lines; parsing (and the
// decision to skip malformed ones) belongs to the consumer.
//
//	s, err := client.Pull(ctx, "llama3.2")
//	if err != nil { ... }
//	defer s.Close()
//	for s.Next() {
//		handle(s.Line())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	line    []byte
	err     error

	closeOnce sync.Once
	onClose   func(err error)
}

func newStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Stream{body: body, scanner: sc}
}

// Next advances to the next non-empty line. It returns false at end of
// stream or on a read error (see Err).
func (s *Stream) Next() bool {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(bytes.TrimSuffix(s.scanner.Bytes(), []byte{'\r'}))
		if len(line) == 0 {
			continue
		}
		s.line = line
		return true
	}
	s.line = nil
	s.err = s.scanner.Err()
	return false
}

// Line returns the current record. The slice is only valid until the next call to Next.
func (s *Stream) Line() []byte {
	return s.line
}

// Err returns the read error that stopped iteration, if any. A clean close is not an error.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
		if s.onClose != nil {
			s.onClose(s.err)
		}
	})
	return err
}
