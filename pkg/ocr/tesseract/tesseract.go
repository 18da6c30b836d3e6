//go:build tesseract

// Package tesseract binds the Tesseract C API and Leptonica through cgo.
package tesseract

/*
#cgo pkg-config: tesseract lept
#include <stdlib.h>
#include <tesseract/capi.h>
#include <leptonica/allheaders.h>

static char** make_str_array(int n) {
	return (char**)calloc(n > 0 ? n : 1, sizeof(char*));
}

static void set_str(char** a, int i, char* s) {
	a[i] = s;
}

static void free_str_array(char** a, int n) {
	for (int i = 0; i < n; i++) {
		free(a[i]);
	}
	free(a);
}

static int str_array_len(char** a) {
	int n = 0;
	if (a == NULL) {
		return 0;
	}
	while (a[n] != NULL) {
		n++;
	}
	return n;
}

static char* str_array_at(char** a, int i) {
	return a[i];
}

static void destroy_pix(PIX* p) {
	pixDestroy(&p);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/Caia-Tech/caia-ocr/pkg/ocr"
)

// Available reports whether the native backend is compiled in.
const Available = true

// Backend creates engines through TessBaseAPIInit4.
type Backend struct{}

// New returns the native backend.
func New() (*Backend, error) {
	return &Backend{}, nil
}

func (*Backend) Name() string { return "tesseract" }

func (*Backend) Version() string { return C.GoString(C.TessVersion()) }

func (*Backend) Decoder() ocr.Decoder { return Decoder{} }

func (*Backend) Init(p ocr.InitParams) (ocr.Instance, error) {
	api := C.TessBaseAPICreate()
	if api == nil {
		return nil, errors.New("TessBaseAPICreate returned NULL")
	}

	var datapath *C.char
	if p.DataPath != "" {
		datapath = C.CString(p.DataPath)
		defer C.free(unsafe.Pointer(datapath))
	}
	lang := C.CString(p.Language)
	defer C.free(unsafe.Pointer(lang))

	nconfigs := 0
	if p.ConfigFile != "" {
		nconfigs = 1
	}
	configs := C.make_str_array(C.int(nconfigs))
	defer C.free_str_array(configs, C.int(nconfigs))
	if nconfigs == 1 {
		C.set_str(configs, 0, C.CString(p.ConfigFile))
	}

	n := len(p.Options)
	names := C.make_str_array(C.int(n))
	values := C.make_str_array(C.int(n))
	defer C.free_str_array(names, C.int(n))
	defer C.free_str_array(values, C.int(n))
	for i, opt := range p.Options {
		C.set_str(names, C.int(i), C.CString(opt.Name))
		C.set_str(values, C.int(i), C.CString(opt.Value))
	}

	rc := C.TessBaseAPIInit4(api, datapath, lang, C.OEM_DEFAULT,
		configs, C.int(nconfigs), names, values, C.size_t(n), C.FALSE)
	if rc != 0 {
		C.TessBaseAPIDelete(api)
		return nil, fmt.Errorf("TessBaseAPIInit4 returned %d", int(rc))
	}
	return &instance{api: api}, nil
}

func (*Backend) NewParamTable() (ocr.ParamTable, error) {
	api := C.TessBaseAPICreate()
	if api == nil {
		return nil, errors.New("TessBaseAPICreate returned NULL")
	}
	return &paramTable{api: api}, nil
}

// paramTable is an uninitialized base API. Its parameter table knows every
// variable name without loading language data.
type paramTable struct {
	api *C.TessBaseAPI
}

func (t *paramTable) Set(name, value string) bool {
	if t.api == nil {
		return false
	}
	cname := C.CString(name)
	cvalue := C.CString(value)
	defer C.free(unsafe.Pointer(cname))
	defer C.free(unsafe.Pointer(cvalue))
	return C.TessBaseAPISetVariable(t.api, cname, cvalue) != C.FALSE
}

func (t *paramTable) Close() {
	if t.api != nil {
		C.TessBaseAPIDelete(t.api)
		t.api = nil
	}
}

type instance struct {
	api *C.TessBaseAPI
}

func (i *instance) SetVariable(name, value string) bool {
	cname := C.CString(name)
	cvalue := C.CString(value)
	defer C.free(unsafe.Pointer(cname))
	defer C.free(unsafe.Pointer(cvalue))
	return C.TessBaseAPISetVariable(i.api, cname, cvalue) != C.FALSE
}

func (i *instance) SetImage(r ocr.Raster) error {
	switch img := r.(type) {
	case *pixRaster:
		if img.pix == nil {
			return errors.New("raster already destroyed")
		}
		C.TessBaseAPISetImage2(i.api, img.pix)
	case *ocr.ImageRaster:
		if img.Img == nil || len(img.Img.Pix) == 0 {
			return errors.New("raster already destroyed")
		}
		// SetImage copies the buffer into an engine-owned Pix.
		C.TessBaseAPISetImage(i.api, (*C.uchar)(unsafe.Pointer(&img.Img.Pix[0])),
			C.int(img.Width()), C.int(img.Height()),
			C.int(img.BytesPerPixel()), C.int(img.BytesPerLine()))
	default:
		return fmt.Errorf("unsupported raster type %T", r)
	}
	return nil
}

func (i *instance) RecognizeText() (ocr.Output, error) {
	if C.TessBaseAPIRecognize(i.api, nil) != 0 {
		return nil, errors.New("TessBaseAPIRecognize failed")
	}
	text := C.TessBaseAPIGetUTF8Text(i.api)
	if text == nil {
		return nil, errors.New("TessBaseAPIGetUTF8Text returned NULL")
	}
	return &output{text: text}, nil
}

func (i *instance) RecognizeMarkup(page int) (ocr.Output, error) {
	if C.TessBaseAPIRecognize(i.api, nil) != 0 {
		return nil, errors.New("TessBaseAPIRecognize failed")
	}
	text := C.TessBaseAPIGetHOCRText(i.api, C.int(page))
	if text == nil {
		return nil, errors.New("TessBaseAPIGetHOCRText returned NULL")
	}
	return &output{text: text}, nil
}

func (i *instance) ClearAdaptiveClassifier() { C.TessBaseAPIClearAdaptiveClassifier(i.api) }

func (i *instance) Clear() { C.TessBaseAPIClear(i.api) }

func (i *instance) AvailableLanguages() []string {
	return goStrings(C.TessBaseAPIGetAvailableLanguagesAsVector(i.api))
}

func (i *instance) LoadedLanguages() []string {
	return goStrings(C.TessBaseAPIGetLoadedLanguagesAsVector(i.api))
}

func (i *instance) DataPath() string {
	return C.GoString(C.TessBaseAPIGetDatapath(i.api))
}

func (i *instance) PrintVariables(path string) bool {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	return C.TessBaseAPIPrintVariablesToFile(i.api, cpath) != C.FALSE
}

func (i *instance) End() {
	if i.api == nil {
		return
	}
	C.TessBaseAPIEnd(i.api)
	C.TessBaseAPIDelete(i.api)
	i.api = nil
}

// goStrings copies a NULL-terminated vector and frees it.
func goStrings(arr **C.char) []string {
	if arr == nil {
		return nil
	}
	defer C.TessDeleteTextArray(arr)
	n := int(C.str_array_len(arr))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, C.GoString(C.str_array_at(arr, C.int(i))))
	}
	return out
}

// output owns a string allocated by the engine.
type output struct {
	text *C.char
	once sync.Once
}

func (o *output) String() string {
	if o.text == nil {
		return ""
	}
	return C.GoString(o.text)
}

func (o *output) Release() {
	o.once.Do(func() {
		C.TessDeleteText(o.text)
		o.text = nil
	})
}

// Decoder reads images with Leptonica.
type Decoder struct{}

func (Decoder) DecodeBytes(buf []byte) (ocr.Raster, error) {
	if len(buf) == 0 {
		return nil, errors.New("empty buffer")
	}
	pix := C.pixReadMem((*C.l_uint8)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))
	if pix == nil {
		return nil, errors.New("pixReadMem could not decode the buffer")
	}
	return &pixRaster{pix: pix, src: ocr.FromBytes(buf)}, nil
}

func (Decoder) DecodeFile(path string) (ocr.Raster, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	pix := C.pixRead(cpath)
	if pix == nil {
		return nil, fmt.Errorf("pixRead could not read '%s'", path)
	}
	return &pixRaster{pix: pix, src: ocr.FromFile(path)}, nil
}

type pixRaster struct {
	pix *C.PIX
	src ocr.ImageSource
}

func (r *pixRaster) Width() int {
	if r.pix == nil {
		return 0
	}
	return int(C.pixGetWidth(r.pix))
}

func (r *pixRaster) Height() int {
	if r.pix == nil {
		return 0
	}
	return int(C.pixGetHeight(r.pix))
}

func (r *pixRaster) Source() ocr.ImageSource { return r.src }

func (r *pixRaster) Destroy() {
	if r.pix != nil {
		C.destroy_pix(r.pix)
		r.pix = nil
	}
}
