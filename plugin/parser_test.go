package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name: "valid frontmatter",
			input: `---
description: Write a short story
---
You are a storyteller.`,
			want: "Write a short story",
		},
		{
			name:  "no frontmatter",
			input: "Just instructional text.",
			want:  "",
		},
		{
			name: "unclosed frontmatter",
			input: `---
description: Dangling
No closing delimiter here.`,
			want: "",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name: "frontmatter without description",
			input: `---
tools:
  - web_search
---
Content.`,
			want: "",
		},
		{
			name: "invalid yaml frontmatter is ignored",
			input: `---
description: [unbalanced
---
Content.`,
			want: "",
		},
		{
			name: "extra fields alongside description",
			input: `---
description: Draft an email
tone: professional
---
Draft the email.`,
			want: "Draft an email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractDescription([]byte(tt.input)))
		})
	}
}
