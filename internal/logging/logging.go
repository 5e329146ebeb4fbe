// Package logging routes the standard logger to stdout and a rolling service log.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const FileName = "generation.log"

// Setup points the standard logger at stdout and LOGS_DIR/generation.log. The returned
// writer can be shared with other loggers; the file must be closed by the caller.
func Setup(logsDir string) (io.Writer, *os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create logs directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logsDir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	w := io.MultiWriter(os.Stdout, f)
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags)
	return w, f, nil
}

// Tail returns the last n lines of the log at path. A missing file has no lines.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		return []string{}, nil
	}
	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return ring, nil
}

// Follower yields lines appended to a log file after Follow was called.
type Follower struct {
	path    string
	f       *os.File
	r       *bufio.Reader
	partial string
}

// Follow positions a Follower at the end of path. A file that does not exist yet is
// read from its start once it appears.
func Follow(path string) (*Follower, error) {
	fl := &Follower{path: path}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return fl, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek log file: %w", err)
	}
	fl.f, fl.r = f, bufio.NewReader(f)
	return fl, nil
}

// Next returns the complete lines written since the previous call. A trailing line
// without its newline is held back until it is finished.
func (fl *Follower) Next() ([]string, error) {
	if fl.f == nil {
		f, err := os.Open(fl.path)
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		fl.f, fl.r = f, bufio.NewReader(f)
	}

	var lines []string
	for {
		chunk, err := fl.r.ReadString('\n')
		if err == io.EOF {
			fl.partial += chunk
			return lines, nil
		}
		if err != nil {
			return lines, fmt.Errorf("read log file: %w", err)
		}
		lines = append(lines, strings.TrimRight(fl.partial+chunk, "\r\n"))
		fl.partial = ""
	}
}

func (fl *Follower) Close() error {
	if fl.f == nil {
		return nil
	}
	return fl.f.Close()
}
