package normalizer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/project-tktt/avature-crawler/internal/common/normalizer"
)

func TestCleanText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Senior Engineer", normalizer.CleanText("  Senior\n\t Engineer  "))
	assert.Equal(t, "R&D Lead", normalizer.CleanText("R&amp;D Lead"))
	assert.Equal(t, "", normalizer.CleanText(""))
}

func TestSplitInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		location string
		date     string
	}{
		{
			name:     "full info line",
			text:     "Charlotte , NC , USA , Ref #21505 . Posted Jan-30-2026",
			location: "Charlotte, NC, USA",
			date:     "Jan-30-2026",
		},
		{
			name:     "no date",
			text:     "Cambridge , MA , USA , Ref #21285",
			location: "Cambridge, MA, USA",
			date:     "",
		},
		{
			name:     "no location",
			text:     "Ref #5710 . Posted Feb-2-2026",
			location: "",
			date:     "Feb-2-2026",
		},
		{
			name:     "no commas at all",
			text:     "Posted Mar-15-2026",
			location: "",
			date:     "Mar-15-2026",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			location, date := normalizer.SplitInfo(tt.text)
			assert.Equal(t, tt.location, location)
			assert.Equal(t, tt.date, date)
		})
	}
}

func TestPostedDate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Jan-30-2026", normalizer.PostedDate("blah Posted Jan-30-2026 blah"))
	assert.Equal(t, "", normalizer.PostedDate("Posted yesterday"))
}
