package zerobus

import "fmt"

// rawCodec is a passthrough gRPC codec: frames are already encoded byte
// slices, so marshal/unmarshal just move them. The real Zerobus SDK carries
// generated protos; this service owns no generated code and frames records
// itself (see frame.go).
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("zerobus: raw codec marshal: unexpected %T", v)
	}
	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("zerobus: raw codec unmarshal: unexpected %T", v)
	}
	*p = append((*p)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "zerobus-raw" }
