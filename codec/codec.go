// Package codec turns request and reply bodies into Go values and back.
//
// Structured routes use JSONCodec, which also validates the decoded value
// against its struct tags. Document routes use RawCodec, which hands the bytes
// over untouched.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeRaw  CodecType = 1
)

func (t CodecType) String() string {
	if t == CodecTypeRaw {
		return "raw"
	}
	return "json"
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Raw
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeRaw {
		return &RawCodec{}
	}

	return &JSONCodec{}
}
