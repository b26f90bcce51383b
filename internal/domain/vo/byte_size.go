package vo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count with human-readable formatting
type ByteSize int64

const (
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
	TB int64 = 1024 * GB
)

var (
	ErrNegativeSize = errors.New("byte size cannot be negative")
	ErrInvalidSize  = errors.New("invalid byte size")
)

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

// IsZero returns true if the size is zero.
func (b ByteSize) IsZero() bool {
	return b == 0
}

// String returns a human-readable string representation.
func (b ByteSize) String() string {
	n := int64(b)
	switch {
	case n < KB:
		return fmt.Sprintf("%d B", n)
	case n < MB:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(KB))
	case n < GB:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(MB))
	case n < TB:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(GB))
	default:
		return fmt.Sprintf("%.2f TB", float64(n)/float64(TB))
	}
}

// ParseByteSize parses sizes such as "500", "20k", "1.5M", "2GB" or "1 TB".
// Suffixes are case-insensitive and use powers of 1024. An empty string is
// zero.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	multiplier := int64(1)
	s = strings.TrimSuffix(s, "B")
	switch {
	case strings.HasSuffix(s, "T"):
		multiplier = TB
	case strings.HasSuffix(s, "G"):
		multiplier = GB
	case strings.HasSuffix(s, "M"):
		multiplier = MB
	case strings.HasSuffix(s, "K"):
		multiplier = KB
	}
	if multiplier != 1 {
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	if value < 0 {
		return 0, ErrNegativeSize
	}
	return ByteSize(value * float64(multiplier)), nil
}
