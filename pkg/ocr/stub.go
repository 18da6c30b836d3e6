package ocr

import (
	"errors"
	"fmt"
	"html"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// StubBackend produces deterministic output without Tesseract. It models the
// parts of the engine the lifecycle layer depends on: language availability,
// a parameter table, adaptive state that survives between calls unless
// cleared, and separately released outputs.
type StubBackend struct {
	// Languages lists the installed languages. Nil means eng and osd.
	Languages []string
	// Datapath is reported by Info.
	Datapath string
	// FailRecognition makes every recognition fail after the image is bound.
	FailRecognition bool
	// FailSetImage makes binding the raster fail.
	FailSetImage bool

	stats stubCounters
}

// StubStats counts resource events so tests can check that every acquire has
// a matching release.
type StubStats struct {
	Inits            int64
	Ends             int64
	Clears           int64
	AdaptiveClears   int64
	Rasters          int64
	RastersDestroyed int64
	Outputs          int64
	OutputsReleased  int64
}

type stubCounters struct {
	inits            atomic.Int64
	ends             atomic.Int64
	clears           atomic.Int64
	adaptiveClears   atomic.Int64
	rasters          atomic.Int64
	rastersDestroyed atomic.Int64
	outputs          atomic.Int64
	outputsReleased  atomic.Int64
}

var stubParams = map[string]string{
	"tessedit_char_whitelist":          "",
	"tessedit_char_blacklist":          "",
	"tessedit_pageseg_mode":            "6",
	"tessedit_ocr_engine_mode":         "3",
	"tessedit_create_hocr":             "0",
	"tessedit_do_invert":               "1",
	"tessedit_write_images":            "0",
	"user_defined_dpi":                 "0",
	"preserve_interword_spaces":        "0",
	"classify_enable_learning":         "1",
	"classify_enable_adaptive_matcher": "1",
	"load_system_dawg":                 "1",
	"load_freq_dawg":                   "1",
	"textord_heavy_nr":                 "0",
	"thresholding_method":              "0",
	"hocr_font_info":                   "0",
	"lstm_choice_mode":                 "0",
	"debug_file":                       "",
}

const stubDatapath = "/usr/share/tesseract-ocr/5/tessdata/"

func (b *StubBackend) Name() string    { return "stub" }
func (b *StubBackend) Version() string { return "5.3.0-stub" }

// Stats returns a snapshot of the resource counters.
func (b *StubBackend) Stats() StubStats {
	return StubStats{
		Inits:            b.stats.inits.Load(),
		Ends:             b.stats.ends.Load(),
		Clears:           b.stats.clears.Load(),
		AdaptiveClears:   b.stats.adaptiveClears.Load(),
		Rasters:          b.stats.rasters.Load(),
		RastersDestroyed: b.stats.rastersDestroyed.Load(),
		Outputs:          b.stats.outputs.Load(),
		OutputsReleased:  b.stats.outputsReleased.Load(),
	}
}

func (b *StubBackend) languages() []string {
	if b.Languages == nil {
		return []string{"eng", "osd"}
	}
	return b.Languages
}

func (b *StubBackend) datapath() string {
	if b.Datapath == "" {
		return stubDatapath
	}
	return b.Datapath
}

func (b *StubBackend) Init(p InitParams) (Instance, error) {
	installed := make(map[string]bool)
	for _, l := range b.languages() {
		installed[l] = true
	}
	loaded := strings.Split(p.Language, "+")
	for _, l := range loaded {
		if !installed[l] {
			return nil, fmt.Errorf("failed loading language '%s'", l)
		}
	}
	if p.ConfigFile != "" {
		if _, err := os.Stat(p.ConfigFile); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	vars := make(map[string]string, len(stubParams))
	for k, v := range stubParams {
		vars[k] = v
	}
	// Unknown init-time variables are ignored, as the native init does.
	for _, opt := range p.Options {
		if _, ok := vars[opt.Name]; ok {
			vars[opt.Name] = opt.Value
		}
	}

	datapath := p.DataPath
	if datapath == "" {
		datapath = b.datapath()
	}
	b.stats.inits.Add(1)
	return &stubInstance{backend: b, datapath: datapath, loaded: loaded, vars: vars}, nil
}

func (b *StubBackend) NewParamTable() (ParamTable, error) {
	return stubParamTable{}, nil
}

func (b *StubBackend) Decoder() Decoder {
	return stubDecoder{backend: b}
}

type stubParamTable struct{}

func (stubParamTable) Set(name, value string) bool {
	_, ok := stubParams[name]
	return ok
}

func (stubParamTable) Close() {}

// stubDecoder wraps GoDecoder and counts raster lifetimes.
type stubDecoder struct {
	backend *StubBackend
}

type stubRaster struct {
	Raster
	backend *StubBackend
}

func (r *stubRaster) Destroy() {
	r.backend.stats.rastersDestroyed.Add(1)
	r.Raster.Destroy()
}

func (d stubDecoder) wrap(r Raster, err error) (Raster, error) {
	if err != nil {
		return nil, err
	}
	d.backend.stats.rasters.Add(1)
	return &stubRaster{Raster: r, backend: d.backend}, nil
}

func (d stubDecoder) DecodeBytes(buf []byte) (Raster, error) {
	return d.wrap(GoDecoder{}.DecodeBytes(buf))
}

func (d stubDecoder) DecodeFile(path string) (Raster, error) {
	return d.wrap(GoDecoder{}.DecodeFile(path))
}

type stubInstance struct {
	backend  *StubBackend
	datapath string
	loaded   []string
	vars     map[string]string

	width, height int
	bound         bool
	// adapted counts recognitions since the adaptive classifier was cleared.
	adapted int
	ended   bool
}

func (s *stubInstance) SetVariable(name, value string) bool {
	if _, ok := s.vars[name]; !ok {
		return false
	}
	s.vars[name] = value
	return true
}

func (s *stubInstance) SetImage(r Raster) error {
	if r == nil {
		return errors.New("nil raster")
	}
	if s.backend.FailSetImage {
		return errors.New("stub set image failure")
	}
	s.width, s.height = r.Width(), r.Height()
	s.bound = true
	return nil
}

func (s *stubInstance) text() (string, error) {
	if !s.bound {
		return "", errors.New("no image bound")
	}
	if s.backend.FailRecognition {
		return "", errors.New("stub recognition failure")
	}
	text := fmt.Sprintf("stub %s %dx%d", strings.Join(s.loaded, "+"), s.width, s.height)
	if s.vars["classify_enable_learning"] != "0" && s.adapted > 0 {
		text += fmt.Sprintf(" adapted %d", s.adapted)
	}
	s.adapted++
	return text, nil
}

func (s *stubInstance) output(text string) Output {
	s.backend.stats.outputs.Add(1)
	return &stubOutput{text: text, backend: s.backend}
}

func (s *stubInstance) RecognizeText() (Output, error) {
	text, err := s.text()
	if err != nil {
		return nil, err
	}
	return s.output(text + "\n"), nil
}

func (s *stubInstance) RecognizeMarkup(page int) (Output, error) {
	text, err := s.text()
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  <div class='ocr_page' id='page_%d' title='image \"\"; bbox 0 0 %d %d; ppageno %d'>\n", page+1, s.width, s.height, page)
	fmt.Fprintf(&b, "   <div class='ocr_carea' id='block_%d_1' title=\"bbox 0 0 %d %d\">\n", page+1, s.width, s.height)
	fmt.Fprintf(&b, "    <p class='ocr_par' id='par_%d_1' lang='%s'>\n", page+1, s.loaded[0])
	fmt.Fprintf(&b, "     <span class='ocr_line' id='line_%d_1' title=\"bbox 0 0 %d %d\">", page+1, s.width, s.height)
	words := strings.Fields(text)
	step := 1
	if len(words) > 0 && s.width > len(words) {
		step = s.width / len(words)
	}
	for i, w := range words {
		fmt.Fprintf(&b, "<span class='ocrx_word' id='word_%d_%d' title='bbox %d 0 %d %d; x_wconf 95'>%s</span>", page+1, i+1, i*step, (i+1)*step, s.height, html.EscapeString(w))
		if i < len(words)-1 {
			b.WriteByte(' ')
		}
	}
	b.WriteString("\n     </span>\n    </p>\n   </div>\n  </div>\n")
	return s.output(b.String()), nil
}

func (s *stubInstance) ClearAdaptiveClassifier() {
	s.adapted = 0
	s.backend.stats.adaptiveClears.Add(1)
}

func (s *stubInstance) Clear() {
	s.bound = false
	s.width, s.height = 0, 0
	s.backend.stats.clears.Add(1)
}

func (s *stubInstance) AvailableLanguages() []string {
	langs := append([]string(nil), s.backend.languages()...)
	sort.Strings(langs)
	return langs
}

func (s *stubInstance) LoadedLanguages() []string {
	return append([]string(nil), s.loaded...)
}

func (s *stubInstance) DataPath() string { return s.datapath }

func (s *stubInstance) PrintVariables(path string) bool {
	f, err := os.Create(path)
	if err != nil {
		return false
	}
	defer f.Close()
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(f, "%s\t%s\n", k, s.vars[k])
	}
	return true
}

func (s *stubInstance) End() {
	if s.ended {
		panic("ocr: stub instance ended twice")
	}
	s.ended = true
	s.backend.stats.ends.Add(1)
}

type stubOutput struct {
	text     string
	backend  *StubBackend
	released atomic.Bool
}

func (o *stubOutput) String() string { return o.text }

func (o *stubOutput) Release() {
	if o.released.CompareAndSwap(false, true) {
		o.backend.stats.outputsReleased.Add(1)
	}
}
