//go:build ocr && !tesseract

// Package gosseract runs engines through github.com/otiai10/gosseract/v2.
//
// gosseract initializes lazily on the first recognition and only reports a
// rejected variable while initializing, so Init and SetVariable force an
// initialization and confirm it with a probe recognition over a blank image.
// The client does not expose the adaptive classifier; each initialization
// starts with a fresh one.
package gosseract

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Available reports whether the gosseract backend is compiled in.
const Available = true

// Backend creates gosseract clients.
type Backend struct {
	// ProbeLanguage is used by the parameter table. Empty means eng.
	ProbeLanguage string
}

// New returns the gosseract backend.
func New() (*Backend, error) {
	return &Backend{}, nil
}

func (*Backend) Name() string { return "gosseract" }

func (*Backend) Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}

// Decoder keeps the encoded payload, which gosseract decodes itself.
func (*Backend) Decoder() ocr.Decoder { return ocr.GoDecoder{} }

func (b *Backend) Init(p ocr.InitParams) (ocr.Instance, error) {
	client := gosseract.NewClient()
	if err := configure(client, p); err != nil {
		client.Close()
		return nil, err
	}
	if err := probe(client); err == nil {
		return &instance{client: client, datapath: p.DataPath}, nil
	} else if len(p.Options) == 0 {
		client.Close()
		return nil, err
	}

	// Unknown init-time variables are ignored, as the native init does: start
	// without them and keep the ones the engine accepts.
	client.Variables = map[gosseract.SettableVariable]string{}
	_ = client.SetLanguage(client.Languages...)
	if err := probe(client); err != nil {
		client.Close()
		return nil, err
	}
	inst := &instance{client: client, datapath: p.DataPath}
	for _, opt := range p.Options {
		inst.SetVariable(opt.Name, opt.Value)
	}
	return inst, nil
}

func configure(client *gosseract.Client, p ocr.InitParams) error {
	if p.DataPath != "" {
		if err := client.SetTessdataPrefix(p.DataPath); err != nil {
			return err
		}
	}
	if err := client.SetLanguage(strings.Split(p.Language, "+")...); err != nil {
		return err
	}
	if p.ConfigFile != "" {
		if err := client.SetConfigFile(p.ConfigFile); err != nil {
			return err
		}
	}
	for _, opt := range p.Options {
		if err := client.SetVariable(gosseract.SettableVariable(opt.Name), opt.Value); err != nil {
			return err
		}
	}
	return nil
}

var blankPNG = func() []byte {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// probe forces initialization.
func probe(client *gosseract.Client) error {
	if err := client.SetImageFromBytes(blankPNG); err != nil {
		return err
	}
	_, err := client.Text()
	return err
}

func (b *Backend) NewParamTable() (ocr.ParamTable, error) {
	lang := b.ProbeLanguage
	if lang == "" {
		lang = ocr.DefaultLanguage
	}
	return &paramTable{language: lang}, nil
}

// paramTable checks each variable on a fresh client.
type paramTable struct {
	language string
}

func (t *paramTable) Set(name, value string) bool {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.language); err != nil {
		return false
	}
	if err := client.SetVariable(gosseract.SettableVariable(name), value); err != nil {
		return false
	}
	return probe(client) == nil
}

func (t *paramTable) Close() {}

type instance struct {
	client   *gosseract.Client
	datapath string
}

// SetVariable reinitializes the client with the variable added.
// Client.SetVariable on an initialized client drops the engine's answer, so
// the verdict comes from the reinitialization.
func (i *instance) SetVariable(name, value string) bool {
	key := gosseract.SettableVariable(name)
	prev, existed := i.client.Variables[key]
	i.client.Variables[key] = value
	// SetLanguage flags the client for reinitialization.
	_ = i.client.SetLanguage(i.client.Languages...)
	if probe(i.client) == nil {
		return true
	}
	if existed {
		i.client.Variables[key] = prev
	} else {
		delete(i.client.Variables, key)
	}
	_ = i.client.SetLanguage(i.client.Languages...)
	return false
}

func (i *instance) SetImage(r ocr.Raster) error {
	if img, ok := r.(*ocr.ImageRaster); ok && len(img.Encoded) > 0 {
		return i.client.SetImageFromBytes(img.Encoded)
	}
	src := r.Source()
	if src.Kind == ocr.SourceFile {
		return i.client.SetImage(src.Path)
	}
	if len(src.Data) > 0 {
		return i.client.SetImageFromBytes(src.Data)
	}
	return fmt.Errorf("unsupported raster type %T", r)
}

func (i *instance) RecognizeText() (ocr.Output, error) {
	text, err := i.client.Text()
	if err != nil {
		return nil, err
	}
	return ocr.StringOutput(text), nil
}

// RecognizeMarkup ignores page; gosseract always renders the bound image as
// page 0.
func (i *instance) RecognizeMarkup(page int) (ocr.Output, error) {
	text, err := i.client.HOCRText()
	if err != nil {
		return nil, err
	}
	return ocr.StringOutput(text), nil
}

func (i *instance) ClearAdaptiveClassifier() {}

func (i *instance) Clear() {}

func (i *instance) AvailableLanguages() []string {
	dir := i.DataPath()
	if dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.traineddata"))
	if err != nil {
		return nil
	}
	langs := make([]string, 0, len(matches))
	for _, m := range matches {
		langs = append(langs, strings.TrimSuffix(filepath.Base(m), ".traineddata"))
	}
	sort.Strings(langs)
	return langs
}

func (i *instance) LoadedLanguages() []string {
	return append([]string(nil), i.client.Languages...)
}

func (i *instance) DataPath() string {
	if i.datapath != "" {
		return i.datapath
	}
	return os.Getenv("TESSDATA_PREFIX")
}

// PrintVariables writes the variables set through this client.
func (i *instance) PrintVariables(path string) bool {
	f, err := os.Create(path)
	if err != nil {
		return false
	}
	defer f.Close()
	names := make([]string, 0, len(i.client.Variables))
	for k := range i.client.Variables {
		names = append(names, string(k))
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(f, "%s\t%s\n", k, i.client.Variables[gosseract.SettableVariable(k)])
	}
	return true
}

func (i *instance) End() {
	if i.client != nil {
		i.client.Close()
		i.client = nil
	}
}
