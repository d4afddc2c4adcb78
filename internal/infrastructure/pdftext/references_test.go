package pdftext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractReferencesDOIs(t *testing.T) {
	text := "see https://doi.org/10.1145/3292500.3330672, also 10.1145/3292500.3330672; and 10.48550/arXiv.2104.08653."

	refs := ExtractReferences(text)
	assert.Equal(t, []string{"10.1145/3292500.3330672", "10.48550/arXiv.2104.08653"}, refs.DOIs)
}

func TestExtractReferencesArxivIDs(t *testing.T) {
	text := "Vaswani et al., arXiv:1706.03762v5. Devlin et al., arxiv 1810.04805. Again arXiv:1706.03762."

	refs := ExtractReferences(text)
	assert.Equal(t, []string{"1706.03762", "1810.04805"}, refs.ArxivIDs)
}

func TestExtractReferencesURLs(t *testing.T) {
	text := `References: (https://arxiv.org/abs/2104.08653) and [https://example.com/paper.pdf].`

	refs := ExtractReferences(text)
	assert.Equal(t, []string{"https://arxiv.org/abs/2104.08653", "https://example.com/paper.pdf"}, refs.URLs)
}

func TestExtractReferencesEmpty(t *testing.T) {
	refs := ExtractReferences("plain prose without any identifiers")
	assert.Empty(t, refs.DOIs)
	assert.Empty(t, refs.ArxivIDs)
	assert.Empty(t, refs.URLs)
}

func TestMentions(t *testing.T) {
	refs := &References{
		DOIs:     []string{"10.48550/arXiv.1706.03762"},
		ArxivIDs: []string{"1706.03762"},
		URLs:     []string{"https://arxiv.org/abs/2104.08653"},
	}

	assert.True(t, refs.Mentions("1706.03762", ""))
	assert.False(t, refs.Mentions("1706.99999", ""))

	// DOI 匹配忽略大小写
	assert.True(t, refs.Mentions("", "10.48550/arXiv.1706.03762"))
	assert.True(t, refs.Mentions("", "10.48550/ARXIV.1706.03762"))
	assert.True(t, refs.Mentions("xxxx.00000", "10.48550/arxiv.1706.03762"))
	assert.False(t, refs.Mentions("", "10.9999/other"))

	// URL 中出现 arXiv 编号也视为提及
	assert.True(t, refs.Mentions("2104.08653", ""))

	var nilRefs *References
	assert.False(t, nilRefs.Mentions("1706.03762", "10.1145/3292500.3330672"))
}

func TestHeadWords(t *testing.T) {
	assert.Equal(t, "one two three", HeadWords("one two  three four five", 3))
	assert.Equal(t, "one two", HeadWords("one two", 10))
	assert.Equal(t, "", HeadWords("", 5))
}

func TestExtractRejectsEmptyData(t *testing.T) {
	_, err := Extract(nil)
	assert.Error(t, err)
}
