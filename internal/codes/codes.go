// Package codes generates and formats human-typed recovery codes.
package codes

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
)

// Alphabet omits characters that are easy to confuse when read aloud or
// copied by hand (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Delimiter separates groups in a formatted code.
const Delimiter = "-"

// IndexFunc returns a uniformly random integer in [0, max).
type IndexFunc func(max int) (int, error)

// New returns a code of length characters drawn from Alphabet.
func New(length int, randomIndex IndexFunc) (string, error) {
	if length < 0 {
		return "", errors.Newf("invalid code length %d", length)
	}
	if randomIndex == nil {
		randomIndex = RandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(Alphabet))
		if err != nil {
			return "", err
		}
		if n < 0 || n >= len(Alphabet) {
			return "", errors.Newf("random index %d out of range", n)
		}
		b.WriteByte(Alphabet[n])
	}
	return b.String(), nil
}

// GroupSize is 4 when the length splits evenly into fours but not threes,
// and 3 otherwise.
func GroupSize(length int) int {
	if length%4 == 0 && length%3 != 0 {
		return 4
	}
	return 3
}

// Group splits code into consecutive chunks of size characters. The last
// chunk may be shorter.
func Group(code string, size int) []string {
	if size <= 0 {
		size = GroupSize(len(code))
	}
	groups := make([]string, 0, (len(code)+size-1)/size)
	for start := 0; start < len(code); start += size {
		end := min(start+size, len(code))
		groups = append(groups, code[start:end])
	}
	return groups
}

// Format groups code for display, e.g. "ABC-DEF-GHJ".
func Format(code string) string {
	return strings.Join(Group(code, GroupSize(len(code))), Delimiter)
}

// Canonicalize reverses Format and normalizes user input: it upper-cases
// and strips delimiters and whitespace.
func Canonicalize(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, Delimiter, "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// RandomIndex draws from crypto/rand.
func RandomIndex(max int) (int, error) {
	if max <= 0 {
		return 0, errors.Newf("invalid random bound %d", max)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, errors.Wrap(err, "read random")
	}
	return int(n.Int64()), nil
}
