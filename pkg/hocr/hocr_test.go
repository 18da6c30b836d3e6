package hocr

import (
	"context"
	"testing"

	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/Caia-Tech/caia-ocr/pkg/ocr/ocrtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `  <div class='ocr_page' id='page_1' title='image ""; bbox 0 0 640 200; ppageno 0; scan_res 70 70'>
   <div class='ocr_carea' id='block_1_1' title="bbox 36 40 600 150">
    <p class='ocr_par' id='par_1_1' lang='eng' title="bbox 36 40 600 80">
     <span class='ocr_line' id='line_1_1' title="bbox 36 40 600 80; baseline 0 -10; x_size 40; x_descenders 8; x_ascenders 10">
      <span class='ocrx_word' id='word_1_1' title='bbox 36 40 200 80; x_wconf 96'>Hello</span>
      <span class='ocrx_word' id='word_1_2' title='bbox 220 40 600 80; x_wconf 90'><strong>World</strong></span>
     </span>
    </p>
    <p class='ocr_par' id='par_1_2' lang='eng' title="bbox 36 100 300 150">
     <span class='ocr_header' id='line_1_2' title="bbox 36 100 300 150">
      <span class='ocrx_word' id='word_1_3' title='bbox 36 100 300 150; x_wconf 81'>Again</span>
     </span>
    </p>
   </div>
  </div>
`

func TestParseFragment(t *testing.T) {
	doc, err := ParseString(sample)
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)

	page := doc.Pages[0]
	assert.Equal(t, "page_1", page.ID)
	assert.Equal(t, 0, page.Number)
	assert.Equal(t, BBox{0, 0, 640, 200}, page.BBox)
	require.Len(t, page.Areas, 1)
	require.Len(t, page.Areas[0].Paragraphs, 2)

	par := page.Areas[0].Paragraphs[0]
	assert.Equal(t, "eng", par.Lang)
	require.Len(t, par.Lines, 1)
	line := par.Lines[0]
	assert.Equal(t, "ocr_line", line.Class)
	require.Len(t, line.Words, 2)
	assert.Equal(t, "World", line.Words[1].Text)
	assert.Equal(t, 90.0, line.Words[1].Confidence)
	assert.Equal(t, 380, line.Words[1].BBox.Width())

	assert.Equal(t, "ocr_header", page.Areas[0].Paragraphs[1].Lines[0].Class)
}

func TestDocumentText(t *testing.T) {
	doc, err := ParseString(sample)
	require.NoError(t, err)

	assert.Equal(t, "Hello World\n\nAgain", doc.Text())
	assert.Len(t, doc.Words(), 3)
	assert.InDelta(t, 89.0, doc.MeanConfidence(), 0.001)
}

func TestParseFullDocument(t *testing.T) {
	full := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">
<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="en" lang="en">
 <head><title></title><meta name='ocr-system' content='tesseract 5.3.0' /></head>
 <body>` + sample + `</body>
</html>`
	doc, err := ParseString(full)
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n\nAgain", doc.Text())
}

func TestParseNoPages(t *testing.T) {
	_, err := ParseString("<p>plain html</p>")
	assert.ErrorIs(t, err, ErrNoPages)

	doc := &Document{}
	assert.Zero(t, doc.MeanConfidence())
	assert.Empty(t, doc.Text())
}

func TestParseEngineMarkup(t *testing.T) {
	h, err := ocr.New(&ocr.StubBackend{}, ocr.Config{})
	require.NoError(t, err)
	defer h.Close()

	res, err := h.Recognize(context.Background(), ocr.FromBytes(ocrtest.PNG(t, "Hi")), ocr.FormatMarkup)
	require.NoError(t, err)

	doc, err := ParseString(res.Text)
	require.NoError(t, err)
	words := doc.Words()
	require.Len(t, words, 3)
	assert.Equal(t, "stub", words[0].Text)
	assert.Equal(t, 95.0, words[0].Confidence)
}
