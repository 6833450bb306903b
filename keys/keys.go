// Package keys turns external key names into positions on a ring of 2^M ids.
package keys

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

var ErrInvalidKey = errors.New("invalid key")

// Entry is a named key with an optional value, e.g. a domain and its IP.
type Entry struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// FromName hashes name and returns the digest as a hex key.
func FromName(name string) string {
	h := sha1.New()
	h.Write([]byte(name))
	return hex.EncodeToString(h.Sum(nil))
}

// Reduce parses a hex key of any length and reduces it mod 2^bits.
func Reduce(hexKey string, bits int) (uint64, error) {
	if bits < 1 || bits > 64 {
		return 0, xerrors.Errorf("bits %d: %w", bits, ErrInvalidKey)
	}
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hexKey)), "0x")
	if s == "" {
		return 0, xerrors.Errorf("empty key: %w", ErrInvalidKey)
	}
	if s[0] == '-' || s[0] == '+' {
		return 0, xerrors.Errorf("key %q is signed: %w", hexKey, ErrInvalidKey)
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, xerrors.Errorf("key %q is not hex: %w", hexKey, ErrInvalidKey)
	}

	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return v.Mod(v, mod).Uint64(), nil
}

// LoadFile reads one entry per line, "name [value]". Blank lines and lines
// starting with # are skipped.
func LoadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) > 2 {
			log.Warn().Str("file", path).Str("line", line).Msg("skipping malformed line")
			continue
		}
		entry := Entry{Name: parts[0], Key: FromName(parts[0])}
		if len(parts) == 2 {
			entry.Value = parts[1]
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("error reading file: %w", err)
	}
	return entries, nil
}

// LoadJSON reads a JSON object mapping names to values.
func LoadJSON(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read file: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, xerrors.Errorf("failed to parse %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(m))
	for name, value := range m {
		entries = append(entries, Entry{Name: name, Key: FromName(name), Value: value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
