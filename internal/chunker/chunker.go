// Package chunker splits document text into overlapping fixed-size windows.
//
// Sizes are measured in characters (Unicode code points), so a window never
// splits a multi-byte rune.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"unicode/utf8"
)

// DefaultSize is the default number of characters per chunk.
const DefaultSize = 1000

// DefaultOverlap is the default number of characters shared by consecutive chunks.
const DefaultOverlap = 200

// ErrInvalidConfig is returned when size and overlap cannot produce windows.
var ErrInvalidConfig = errors.New("invalid chunker config")

// Config holds chunking parameters.
type Config struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Size == 0 {
		c.Size = DefaultSize
	}
	if c.Overlap == 0 {
		c.Overlap = DefaultOverlap
	}
}

// Validate checks that the window parameters are usable.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, c.Size)
	}
	if c.Overlap <= 0 {
		return fmt.Errorf("%w: overlap must be positive, got %d", ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidConfig, c.Overlap, c.Size)
	}
	return nil
}

// Split returns the windows of text for the given size and overlap.
//
// The sequence is lazy and restartable: every range over it starts again at
// the first window. The last window may be shorter than size. Once a window
// reaches the end of the text no further window is produced.
func Split(text string, size, overlap int) (iter.Seq[string], error) {
	if err := (Config{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}

	stride := size - overlap
	return func(yield func(string) bool) {
		if text == "" {
			return
		}

		// offsets[i] is the byte offset of rune i; computed per pass so the
		// sequence holds no state between ranges.
		offsets := runeOffsets(text)
		total := len(offsets) - 1

		for start := 0; start < total; start += stride {
			end := min(start+size, total)
			if !yield(text[offsets[start]:offsets[end]]) {
				return
			}
			if end == total {
				return
			}
		}
	}, nil
}

// Split applies the config to text.
func (c Config) Split(text string) (iter.Seq[string], error) {
	return Split(text, c.Size, c.Overlap)
}

func runeOffsets(text string) []int {
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}
