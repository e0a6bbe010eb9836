package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Blog Posts":       "blog-posts",
		"  Café Menü  ":    "cafe-menu",
		"already-a-slug":   "already-a-slug",
		"Mixed__Case 123!": "mixed-case-123",
		"---":              "",
		"":                 "",
	}
	for input, want := range cases {
		assert.Equal(t, want, Slugify(input), "input %q", input)
	}
}

func TestTitleFromSlug(t *testing.T) {
	assert.Equal(t, "Blog Posts", TitleFromSlug("blog-posts"))
	assert.Equal(t, "Editor", TitleFromSlug("editor"))
}
