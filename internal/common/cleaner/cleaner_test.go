package cleaner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/project-tktt/avature-crawler/internal/common/cleaner"
)

func TestCleanStripsScripts(t *testing.T) {
	t.Parallel()

	c := cleaner.NewCleaner()
	out := c.Clean(`<p>Own the hiring pipeline.</p><script>alert(1)</script>`)
	assert.Equal(t, "<p>Own the hiring pipeline.</p>", out)

	out = c.Clean(`<a href="javascript:alert(1)">apply</a><a href="https://ally.avature.net/careers">apply</a>`)
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, `href="https://ally.avature.net/careers"`)
}

func TestCleanToText(t *testing.T) {
	t.Parallel()

	c := cleaner.NewStrictCleaner()
	out := c.CleanToText(`<div><b>Senior Engineer</b> in <span>Charlotte</span></div>`)
	assert.Equal(t, "Senior Engineer in Charlotte", out)
}
