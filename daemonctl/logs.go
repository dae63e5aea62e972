package daemonctl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LogFilter narrows Tail/Head/Follow output by substring and/or a level
// token expected to appear in each line (matching oplog.WriterLogger's
// "LEVEL " field convention).
type LogFilter struct {
	Substring string
	Level     string
}

func (f LogFilter) match(line string) bool {
	if f.Substring != "" && !strings.Contains(line, f.Substring) {
		return false
	}
	if f.Level != "" && !strings.Contains(line, strings.ToUpper(f.Level)) {
		return false
	}
	return true
}

// Tail returns the last n matching lines of path.
func Tail(path string, n int, filter LogFilter) ([]string, error) {
	lines, err := readAllLines(path, filter)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(lines) {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}

// Head returns the first n matching lines of path.
func Head(path string, n int, filter LogFilter) ([]string, error) {
	lines, err := readAllLines(path, filter)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(lines) {
		return lines, nil
	}
	return lines[:n], nil
}

func readAllLines(path string, filter LogFilter) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if filter.match(line) {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// Follow streams newly-appended lines of path to out until ctx is
// cancelled, polling for growth the way `tail -f` does (the files here
// are plain, rotation-unaware appends from the controller's own writer,
// so polling avoids depending on inotify support across targets).
func Follow(ctx context.Context, path string, filter LogFilter, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	reader := bufio.NewReader(f)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		line = strings.TrimRight(line, "\n")
		if filter.match(line) {
			fmt.Fprintln(out, line)
		}
	}
}
