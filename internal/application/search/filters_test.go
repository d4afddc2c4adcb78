package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"needle-api/internal/domain/entity"
)

func paperForFilter() *entity.Paper {
	return &entity.Paper{
		ArxivID:            "2104.08653",
		Title:              "Attention Is Not All You Need",
		Authors:            "Jane Doe, John Smith",
		Abstract:           "We study transformer models for code generation.",
		Categories:         "cs.CL cs.LG",
		LatestCreationDate: "2021-04-18",
	}
}

func TestFiltersEmptyMatchesEverything(t *testing.T) {
	var f *Filters
	assert.True(t, f.IsEmpty())
	assert.True(t, (&Filters{}).Matches(paperForFilter()))
}

func TestFiltersCategoriesAnyOf(t *testing.T) {
	p := paperForFilter()

	assert.True(t, (&Filters{Categories: []string{"cs.LG"}}).Matches(p))
	assert.True(t, (&Filters{Categories: []string{"math.CO", "cs.CL"}}).Matches(p))
	assert.False(t, (&Filters{Categories: []string{"math.CO"}}).Matches(p))
}

func TestFiltersYearRange(t *testing.T) {
	p := paperForFilter()

	assert.True(t, (&Filters{YearMin: 2020, YearMax: 2022}).Matches(p))
	assert.True(t, (&Filters{YearMin: 2021, YearMax: 2021}).Matches(p))
	assert.False(t, (&Filters{YearMin: 2022}).Matches(p))
	assert.False(t, (&Filters{YearMax: 2020}).Matches(p))
}

func TestFiltersYearMissingDatePasses(t *testing.T) {
	p := paperForFilter()
	p.LatestCreationDate = ""

	// 日期缺失时年份过滤放行
	assert.True(t, (&Filters{YearMin: 2020, YearMax: 2022}).Matches(p))
}

func TestFiltersYearUnparseableDateFails(t *testing.T) {
	p := paperForFilter()
	p.LatestCreationDate = "n/a-date"

	assert.False(t, (&Filters{YearMin: 2020}).Matches(p))
}

func TestFiltersKeywordsAllRequired(t *testing.T) {
	p := paperForFilter()

	assert.True(t, (&Filters{TitleKeywords: []string{"attention", "NEED"}}).Matches(p))
	assert.False(t, (&Filters{TitleKeywords: []string{"attention", "recurrent"}}).Matches(p))

	assert.True(t, (&Filters{AbstractKeywords: []string{"transformer", "code"}}).Matches(p))
	assert.False(t, (&Filters{AbstractKeywords: []string{"transformer", "protein"}}).Matches(p))
}

func TestFiltersAuthorSubstring(t *testing.T) {
	p := paperForFilter()

	assert.True(t, (&Filters{AuthorName: "doe"}).Matches(p))
	assert.True(t, (&Filters{AuthorName: "John Smith"}).Matches(p))
	assert.False(t, (&Filters{AuthorName: "Curie"}).Matches(p))
}

func TestFiltersCombinedAnd(t *testing.T) {
	p := paperForFilter()

	f := &Filters{
		Categories:    []string{"cs.CL"},
		YearMin:       2021,
		TitleKeywords: []string{"attention"},
		AuthorName:    "doe",
	}
	assert.True(t, f.Matches(p))

	f.AuthorName = "Curie"
	assert.False(t, f.Matches(p))
}

func TestFiltersApplyPreservesOrder(t *testing.T) {
	mk := func(id, cats string) *Result {
		p := paperForFilter()
		p.ArxivID = id
		p.Categories = cats
		return &Result{Paper: p}
	}
	results := []*Result{
		mk("1", "cs.CL"),
		mk("2", "math.CO"),
		mk("3", "cs.CL cs.LG"),
		nil,
	}

	f := &Filters{Categories: []string{"cs.CL"}}
	out := f.Apply(results)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].Paper.ArxivID)
	assert.Equal(t, "3", out[1].Paper.ArxivID)
}
