package payloads

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads a newline-delimited payload override file. Blank lines
// and lines starting with '#' are skipped. Loaded payloads replace the
// built-in catalog entirely and carry ContextUnknown until a reflection
// classifies them.
//
// Templates may embed a {{marker}} slot anywhere. A template without one
// gets the slot appended, so every probe stays attributable to its marker.
func LoadFile(path string) ([]Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open payload file: %w", err)
	}
	defer f.Close()
	return parsePayloads(f)
}

func parsePayloads(r io.Reader) ([]Payload, error) {
	var out []Payload
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, markerSlot) {
			line += markerSlot
		}
		out = append(out, Payload{
			Template:    line,
			Context:     ContextUnknown,
			Complexity:  n,
			Description: "User payload",
		})
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("payload file contains no payloads")
	}
	return out, nil
}
