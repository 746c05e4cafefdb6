// Package spillstore implements the disk spill directory: draining
// previously spilled files back to the wire on reconnect, and spilling
// queued buffers to disk when the network path is down or backlogged.
//
// Grounded on original_source/net/sender.cpp's send_files/send_file/
// save_buffers/save_buffer, with the directory-existence and path-length
// validation style of dirstore.go's validatePathExists.
package spillstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/guidoreina/netbuf/buffer"
	"github.com/guidoreina/netbuf/logger"
	"github.com/guidoreina/netbuf/transport"
)

// ErrBadDirectory is returned by New when dir does not exist or is not a
// directory — a configuration error meant to fail Start before any
// worker thread is spawned.
var ErrBadDirectory = errors.New("spillstore: bad directory")

// sendChunkSize is the read size used when streaming a spill file to the
// transport; each chunk read is handed to one conn.Send call.
const sendChunkSize = 64 * 1024

// Store manages the flat spill directory used to persist backlog across
// a restart of the sender process.
type Store struct {
	dir string
	log logger.Logger
}

// New validates dir and returns a Store rooted there. It does not create
// the directory — the directory must already exist before a Store is
// constructed over it.
func New(dir string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Noop()
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, ErrBadDirectory
	}
	return &Store{dir: dir, log: log}, nil
}

// Dir returns the spill directory path.
func (s *Store) Dir() string { return s.dir }

// SendFiles drains the spill directory over conn: for each regular file,
// in lexicographically sorted name order (the source iterates in readdir
// order, which is filesystem-specific, even though the filename scheme
// was clearly meant to sort chronologically — sorting the names here
// fixes that), it sends the whole file as one logical message and
// unlinks it on success. On the first send failure, the scan stops and
// the file is left in place for the next attempt; files already sent
// remain unlinked. An empty directory is success. A directory-open
// failure is reported as an error: this function assumes the directory
// was already validated by New, so a failure here means it vanished
// after Start, which the caller treats as transport-transient.
func (s *Store) SendFiles(conn transport.Conn, timeout time.Duration) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("spillstore: reading directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.dir, name)

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			// Unstattable or non-regular entries are silently ignored.
			continue
		}

		if err := s.sendFile(conn, path, timeout); err != nil {
			s.log.Warnf("spillstore: sending %s: %v", path, err)
			return err
		}

		if err := os.Remove(path); err != nil {
			s.log.Warnf("spillstore: removing %s after send: %v", path, err)
		}
	}

	return nil
}

// sendFile streams path's whole content to conn as a single logical
// message. The source mmaps the file and hands the whole mapping to a
// single send() call; a chunked read loop over the file is a legitimate
// substitute for the mmap, since mmap itself isn't essential to the
// behavior. transport.Conn.Send itself loops internally over short
// writes, so each chunk is still delivered as part of one uninterrupted
// logical transmission from the worker's point of view.
func (s *Store) sendFile(conn transport.Conn, path string, timeout time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		// Matches the source's send_file: a file that vanished or
		// cannot be opened is ignored, not a hard failure.
		return nil
	}
	defer f.Close()

	buf := make([]byte, sendChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if sendErr := conn.Send(buf[:n], timeout); sendErr != nil {
				return sendErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// SaveAll writes each buffer of the chain [first, last] (typically a
// whole queue just drained by the caller) to its own file under the
// spill directory, returning every buffer to pool
// regardless of individual save outcome: save_buffer always returns the
// buffer to the pool even on failure, and the caller aggregates failure
// without distinguishing "some written" from "none written" — kept as-is;
// see DESIGN.md. The filename counter starts at 0 for the call and
// increments on every probe, including across buffers, matching
// save_buffer's "unsigned& count" carried by reference through the whole
// drain.
func (s *Store) SaveAll(first, last *buffer.Buffer, pool *buffer.Pool) bool {
	if first == nil {
		return true
	}

	ok := true
	counter := 0
	now := time.Now()

	for cur := first; ; {
		next := cur.Next()

		if err := s.saveOne(cur, now, &counter); err != nil {
			s.log.Warnf("spillstore: saving buffer: %v", err)
			ok = false
		}

		pool.Put(cur)

		if cur == last {
			break
		}
		cur = next
	}

	return ok
}

// saveOne implements the per-call, ever-incrementing filename probe:
// compose a candidate name, stat it, and keep incrementing the counter
// until an unused name is found.
func (s *Store) saveOne(buf *buffer.Buffer, now time.Time, counter *int) error {
	var name string
	for {
		name = spillFilename(s.dir, now, *counter)
		*counter++
		if _, err := os.Stat(name); os.IsNotExist(err) {
			break
		}
	}
	return buf.Save(name)
}

// spillFilename builds "directory/YYYYMMDD-HHMMSS_NNNNNN" in local time,
// matching the source's save_buffer snprintf format exactly.
func spillFilename(dir string, t time.Time, counter int) string {
	return filepath.Join(dir, fmt.Sprintf("%04d%02d%02d-%02d%02d%02d_%06d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), counter))
}
