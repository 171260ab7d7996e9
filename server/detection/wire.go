package detection

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ImageRequest is the hazard.ImageRequest message:
//
//	bytes  image_data = 1;
//	double latitude   = 2;
//	double longitude  = 3;
type ImageRequest struct {
	ImageData []byte
	Latitude  float64
	Longitude float64
}

// DetectionResponse is the hazard.DetectionResponse message:
//
//	string hazard_type = 1;
//	int32  priority    = 2;
//	float  confidence  = 3;
type DetectionResponse struct {
	HazardType string
	Priority   int32
	Confidence float32
}

type message interface {
	Marshal() []byte
	Unmarshal(b []byte) error
}

// Marshal encodes the request in proto3 form; zero-valued fields are omitted.
func (m *ImageRequest) Marshal() []byte {
	var b []byte
	if len(m.ImageData) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.ImageData)
	}
	if bits := math.Float64bits(m.Latitude); bits != 0 {
		b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, bits)
	}
	if bits := math.Float64bits(m.Longitude); bits != 0 {
		b = protowire.AppendTag(b, 3, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, bits)
	}
	return b
}

func (m *ImageRequest) Unmarshal(b []byte) error {
	*m = ImageRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("image request: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				m.ImageData = append([]byte(nil), v...)
			}
		case num == 2 && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			m.Latitude = math.Float64frombits(v)
		case num == 3 && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			m.Longitude = math.Float64frombits(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}

		if n < 0 {
			return fmt.Errorf("image request field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func (m *DetectionResponse) Marshal() []byte {
	var b []byte
	if m.HazardType != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.HazardType)
	}
	if m.Priority != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(m.Priority)))
	}
	if bits := math.Float32bits(m.Confidence); bits != 0 {
		b = protowire.AppendTag(b, 3, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, bits)
	}
	return b
}

func (m *DetectionResponse) Unmarshal(b []byte) error {
	*m = DetectionResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("detection response: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			m.HazardType, n = protowire.ConsumeString(b)
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			m.Priority = int32(v)
		case num == 3 && typ == protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			m.Confidence = math.Float32frombits(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}

		if n < 0 {
			return fmt.Errorf("detection response field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

// wireCodec lets grpc-go carry the hand-encoded messages.
type wireCodec struct{}

func (wireCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("detection codec: cannot marshal %T", v)
	}
	return m.Marshal(), nil
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("detection codec: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (wireCodec) Name() string { return "proto" }
