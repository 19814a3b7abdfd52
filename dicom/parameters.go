package dicom

import (
	"fmt"

	"github.com/cocosip/go-dicom/pkg/imaging/codec"
)

var _ codec.Parameters = (*Parameters)(nil)

// Parameter names understood by GetParameter and SetParameter.
const (
	ParamBufferSize = "bufferSize"
	ParamPoolSize   = "poolSize"
	ParamFastDecode = "fastDecode"
)

// Parameters controls how frames are decoded.
type Parameters struct {
	// BufferSize is the stream input buffer size. DHT segments written by most
	// encoders hold all four tables and need more than 256 bytes.
	BufferSize int
	// PoolSize is the working memory allocated per frame.
	PoolSize int
	// FastDecode is the decoder optimization level (0-2).
	FastDecode int

	params map[string]interface{}
}

// NewParameters returns Parameters with default values.
func NewParameters() *Parameters {
	return &Parameters{
		BufferSize: 1024,
		PoolSize:   16 << 10,
		FastDecode: 1,
		params:     make(map[string]interface{}),
	}
}

// GetParameter retrieves a parameter by name.
func (p *Parameters) GetParameter(name string) interface{} {
	switch name {
	case ParamBufferSize:
		return p.BufferSize
	case ParamPoolSize:
		return p.PoolSize
	case ParamFastDecode:
		return p.FastDecode
	default:
		return p.params[name]
	}
}

// SetParameter sets a parameter value. Values of the wrong type are ignored for the known names.
func (p *Parameters) SetParameter(name string, value interface{}) {
	switch name {
	case ParamBufferSize:
		if v, ok := value.(int); ok {
			p.BufferSize = v
		}
	case ParamPoolSize:
		if v, ok := value.(int); ok {
			p.PoolSize = v
		}
	case ParamFastDecode:
		if v, ok := value.(int); ok {
			p.FastDecode = v
		}
	default:
		if p.params == nil {
			p.params = make(map[string]interface{})
		}

		p.params[name] = value
	}
}

// Validate checks the parameter ranges.
func (p *Parameters) Validate() error {
	if p.BufferSize < 32 {
		return fmt.Errorf("buffer size %d too small", p.BufferSize)
	}

	if p.PoolSize < p.BufferSize {
		return fmt.Errorf("pool size %d smaller than buffer size %d", p.PoolSize, p.BufferSize)
	}

	if p.FastDecode < 0 || p.FastDecode > 2 {
		return fmt.Errorf("fast decode level %d out of range 0-2", p.FastDecode)
	}

	return nil
}

// fromGeneric builds Parameters from any codec.Parameters, falling back to defaults.
func fromGeneric(parameters codec.Parameters) *Parameters {
	if parameters == nil {
		return NewParameters()
	}

	if p, ok := parameters.(*Parameters); ok {
		return p
	}

	p := NewParameters()
	for _, name := range []string{ParamBufferSize, ParamPoolSize, ParamFastDecode} {
		if v := parameters.GetParameter(name); v != nil {
			p.SetParameter(name, v)
		}
	}

	return p
}
