package ocr

import (
	"fmt"
	"sync"
)

// SourceKind tells where a raster came from.
type SourceKind int

const (
	SourceBytes SourceKind = iota
	SourceFile
)

// ImageSource is either an in-memory buffer or a file path.
type ImageSource struct {
	Kind SourceKind
	Data []byte
	Path string
}

// FromBytes builds an ImageSource over buf. The buffer is not copied.
func FromBytes(buf []byte) ImageSource {
	return ImageSource{Kind: SourceBytes, Data: buf}
}

// FromFile builds an ImageSource over a file path.
func FromFile(path string) ImageSource {
	return ImageSource{Kind: SourceFile, Path: path}
}

func (s ImageSource) String() string {
	if s.Kind == SourceFile {
		return fmt.Sprintf("file '%s'", s.Path)
	}
	return fmt.Sprintf("%d byte buffer", len(s.Data))
}

// Raster is a decoded image owned by a single recognition call.
type Raster interface {
	Width() int
	Height() int
	Source() ImageSource
	Destroy()
}

// Decoder turns image bytes or files into rasters.
type Decoder interface {
	DecodeBytes(buf []byte) (Raster, error)
	DecodeFile(path string) (Raster, error)
}

// decode dispatches on the source kind and wraps every failure in an
// ImageDecodeError.
func decode(d Decoder, src ImageSource) (*rasterResource, error) {
	var (
		r   Raster
		err error
	)
	switch src.Kind {
	case SourceFile:
		r, err = d.DecodeFile(src.Path)
	default:
		if len(src.Data) == 0 {
			return nil, &ImageDecodeError{Source: src.String(), Err: fmt.Errorf("empty buffer")}
		}
		r, err = d.DecodeBytes(src.Data)
	}
	if err != nil {
		if r != nil {
			r.Destroy()
		}
		if _, ok := err.(*ImageDecodeError); ok {
			return nil, err
		}
		return nil, &ImageDecodeError{Source: src.String(), Err: err}
	}
	if r == nil {
		return nil, &ImageDecodeError{Source: src.String()}
	}
	return &rasterResource{raster: r}, nil
}

// rasterResource guarantees Destroy reaches the decoder's raster once.
type rasterResource struct {
	raster Raster
	once   sync.Once
}

func (r *rasterResource) destroy() {
	r.once.Do(r.raster.Destroy)
}
