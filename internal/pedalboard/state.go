package pedalboard

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// StateFilePath returns where the host keeps the persisted state of the
// instance with the given number.
func StateFilePath(dir string, number int) string {
	return filepath.Join(dir, "data", "effect-"+strconv.Itoa(number)+".state")
}

// readStateFile parses `key "value"` lines and keeps entries whose value
// looks like a real file path. A missing file yields no entries.
func readStateFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := parseStateLine(scanner.Text())
		if !ok || !isFilePath(value) {
			continue
		}
		out[key] = value
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func parseStateLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	key, rest, found := strings.Cut(line, " ")
	if !found {
		return "", "", false
	}
	value := strings.TrimSpace(rest)
	if unquoted, err := strconv.Unquote(value); err == nil {
		value = unquoted
	} else {
		value = strings.Trim(value, `"`)
	}
	return key, value, true
}

func isFilePath(v string) bool {
	return v != "" && v != "none" && strings.Contains(v, "/")
}
