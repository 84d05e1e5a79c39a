package system

import (
	"fmt"
	"strconv"

	"emperror.dev/errors"
)

// FirstNotEmpty returns the first string passed in that is not an empty value.
func FirstNotEmpty(v ...string) string {
	for _, val := range v {
		if val != "" {
			return val
		}
	}
	return ""
}

// AtoiOr parses v as an integer, returning the fallback when v is empty. Any
// other value that is not an integer is an error.
func AtoiOr(v string, fallback int) (int, error) {
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "system/utils: could not parse %q as an integer", v)
	}
	return i, nil
}

func FormatBytes[T int | int16 | int32 | int64 | uint | uint16 | uint32 | uint64](b T) string {
	if b < 1024 {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(1024), 0
	for n := b / 1024; n >= 1024; n /= 1024 {
		div *= 1024
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
