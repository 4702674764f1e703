package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxFilenameLength is the maximum length for a generated filename
const MaxFilenameLength = 200

var (
	nonSlugRegex     = regexp.MustCompile(`[^a-z0-9]+`)
	multipleDashesRe = regexp.MustCompile(`-{2,}`)
)

// Slugify converts a title into a lowercase, dash-separated filename stem.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = nonSlugRegex.ReplaceAllString(slug, "-")
	slug = multipleDashesRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > MaxFilenameLength {
		slug = strings.Trim(slug[:MaxFilenameLength], "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// EnsureDir ensures the parent directory of path exists
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}
