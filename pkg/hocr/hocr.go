// Package hocr parses the hOCR markup produced by Tesseract into a page,
// area, paragraph, line and word tree with bounding boxes and confidences.
package hocr

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoPages is returned when the markup holds no ocr_page element.
var ErrNoPages = errors.New("hocr: no ocr_page element found")

// BBox is a rectangle in image pixels.
type BBox struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

func (b BBox) Width() int  { return b.X1 - b.X0 }
func (b BBox) Height() int { return b.Y1 - b.Y0 }

type Word struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

type Line struct {
	ID    string `json:"id"`
	Class string `json:"class"`
	BBox  BBox   `json:"bbox"`
	Words []Word `json:"words"`
}

type Paragraph struct {
	ID    string `json:"id"`
	Lang  string `json:"lang,omitempty"`
	BBox  BBox   `json:"bbox"`
	Lines []Line `json:"lines"`
}

type Area struct {
	ID         string      `json:"id"`
	BBox       BBox        `json:"bbox"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

type Page struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	BBox   BBox   `json:"bbox"`
	Areas  []Area `json:"areas"`
}

// Document is a parsed hOCR tree.
type Document struct {
	Pages []Page `json:"pages"`
}

var lineClasses = []string{"ocr_line", "ocr_header", "ocr_caption", "ocr_textfloat"}

// Parse reads hOCR from r. Both full documents and the bare page fragments
// returned by the engine are accepted.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse hOCR: %w", err)
	}

	doc := &Document{}
	for _, pn := range find(root, "ocr_page") {
		title := parseTitle(attr(pn, "title"))
		page := Page{ID: attr(pn, "id"), BBox: title.bbox}
		if v, ok := title.props["ppageno"]; ok && len(v) > 0 {
			page.Number, _ = strconv.Atoi(v[0])
		}
		for _, an := range find(pn, "ocr_carea") {
			page.Areas = append(page.Areas, parseArea(an))
		}
		doc.Pages = append(doc.Pages, page)
	}
	if len(doc.Pages) == 0 {
		return nil, ErrNoPages
	}
	return doc, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func parseArea(n *html.Node) Area {
	area := Area{ID: attr(n, "id"), BBox: parseTitle(attr(n, "title")).bbox}
	for _, pn := range find(n, "ocr_par") {
		par := Paragraph{
			ID:   attr(pn, "id"),
			Lang: attr(pn, "lang"),
			BBox: parseTitle(attr(pn, "title")).bbox,
		}
		for _, ln := range find(pn, lineClasses...) {
			par.Lines = append(par.Lines, parseLine(ln))
		}
		area.Paragraphs = append(area.Paragraphs, par)
	}
	return area
}

func parseLine(n *html.Node) Line {
	line := Line{
		ID:    attr(n, "id"),
		Class: class(n),
		BBox:  parseTitle(attr(n, "title")).bbox,
	}
	for _, wn := range find(n, "ocrx_word") {
		title := parseTitle(attr(wn, "title"))
		word := Word{
			ID:   attr(wn, "id"),
			Text: strings.TrimSpace(textOf(wn)),
			BBox: title.bbox,
		}
		if v, ok := title.props["x_wconf"]; ok && len(v) > 0 {
			word.Confidence, _ = strconv.ParseFloat(v[0], 64)
		}
		line.Words = append(line.Words, word)
	}
	return line
}

// Text renders the recognized text: words joined by spaces, one line per
// line element and a blank line between paragraphs.
func (d *Document) Text() string {
	var b strings.Builder
	for _, page := range d.Pages {
		for _, area := range page.Areas {
			for _, par := range area.Paragraphs {
				for _, line := range par.Lines {
					words := make([]string, 0, len(line.Words))
					for _, w := range line.Words {
						if w.Text != "" {
							words = append(words, w.Text)
						}
					}
					if len(words) == 0 {
						continue
					}
					b.WriteString(strings.Join(words, " "))
					b.WriteByte('\n')
				}
				b.WriteByte('\n')
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Words flattens the tree in reading order.
func (d *Document) Words() []Word {
	var words []Word
	for _, page := range d.Pages {
		for _, area := range page.Areas {
			for _, par := range area.Paragraphs {
				for _, line := range par.Lines {
					words = append(words, line.Words...)
				}
			}
		}
	}
	return words
}

// MeanConfidence averages x_wconf over all words. It is 0 without words.
func (d *Document) MeanConfidence() float64 {
	words := d.Words()
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

type title struct {
	bbox  BBox
	props map[string][]string
}

// parseTitle splits "bbox 0 0 10 10; x_wconf 95" into properties.
func parseTitle(s string) title {
	t := title{props: make(map[string][]string)}
	for _, part := range strings.Split(s, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		t.props[fields[0]] = fields[1:]
	}
	if v := t.props["bbox"]; len(v) == 4 {
		var coords [4]int
		for i, f := range v {
			coords[i], _ = strconv.Atoi(f)
		}
		t.bbox = BBox{X0: coords[0], Y0: coords[1], X1: coords[2], Y1: coords[3]}
	}
	return t
}

// find returns the outermost descendants of n carrying one of classes.
func find(n *html.Node, classes ...string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && hasClass(c, classes) {
			out = append(out, c)
			continue
		}
		out = append(out, find(c, classes...)...)
	}
	return out
}

func hasClass(n *html.Node, classes []string) bool {
	for _, have := range strings.Fields(attr(n, "class")) {
		for _, want := range classes {
			if have == want {
				return true
			}
		}
	}
	return false
}

func class(n *html.Node) string {
	fields := strings.Fields(attr(n, "class"))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return b.String()
}
