package codec

import (
	"fmt"

	"dashrpc/rpcerr"
)

// RawCodec passes bytes through unmodified. Used by routes whose reply is a
// generated document rather than JSON.
type RawCodec struct{}

func (c *RawCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("RawCodec: cannot encode %T", v)
	}
}

func (c *RawCodec) Decode(data []byte, v any) error {
	dst, ok := v.(*[]byte)
	if !ok {
		return rpcerr.ParseError.New("RawCodec: v must be *[]byte, got %T", v)
	}
	*dst = append((*dst)[:0], data...)
	return nil
}

func (c *RawCodec) Type() CodecType {
	return CodecTypeRaw
}
