package plugin

import (
	"bufio"
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the subset of YAML frontmatter the loader indexes.
// Everything else in the file, frontmatter included, stays part of the
// opaque text blob.
type frontmatter struct {
	Description string `yaml:"description"`
}

// extractDescription pulls the description field out of a markdown file's
// YAML frontmatter, delimited by "---" lines at the start of the file.
// Files without frontmatter, or with frontmatter that is not valid YAML,
// yield an empty description; indexing is best-effort.
func extractDescription(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "---" {
		return ""
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			closed = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !closed {
		return ""
	}

	var meta frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(fmLines, "\n")), &meta); err != nil {
		return ""
	}
	return meta.Description
}
