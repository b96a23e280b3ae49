// Package util provides common utility functions used across framereplay.
package util

import (
	"path/filepath"
	"strings"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// SplitArgs splits a console line into words, keeping double-quoted runs
// together and dropping the quotes.
func SplitArgs(line string) []string {
	var (
		args    []string
		b       strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case !quoted && (r == ' ' || r == '\t'):
			if pending {
				args = append(args, b.String())
				b.Reset()
				pending = false
			}
		default:
			b.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, b.String())
	}
	return args
}

// SafeFileName turns a source path into a file name stem: the directory and
// extension are dropped and spaces and colons become underscores.
func SafeFileName(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "replay"
	}
	return name
}

// HTTPToWS converts an http(s) base URL to its ws(s) counterpart.
func HTTPToWS(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}
