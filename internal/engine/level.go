package engine

import (
	"fmt"
	"strings"
)

// CompressionLevel is an ordinal scale every driver maps onto its native one.
type CompressionLevel int

const (
	LevelNone CompressionLevel = iota
	LevelWeak
	LevelAverage
	LevelStrong
	LevelMaximum
)

var levelNames = [...]string{"none", "weak", "average", "strong", "maximum"}

func (l CompressionLevel) String() string {
	if l < LevelNone || l > LevelMaximum {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseCompressionLevel accepts a level name or its ordinal 0..4.
func ParseCompressionLevel(s string) (CompressionLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name || s == fmt.Sprint(i) {
			return CompressionLevel(i), nil
		}
	}
	return LevelAverage, fmt.Errorf("invalid compression level %q (expected one of %v)", s, levelNames)
}

// Scale maps the level linearly onto [lo, hi]. Out of range levels are clamped.
func (l CompressionLevel) Scale(lo, hi int) int {
	l = min(max(l, LevelNone), LevelMaximum)
	return lo + (hi-lo)*int(l)/int(LevelMaximum)
}
