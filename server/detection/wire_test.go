package detection

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestImageRequest_MarshalBytes(t *testing.T) {
	req := ImageRequest{ImageData: []byte{0xff, 0xd8}, Latitude: 26.15, Longitude: 91.77}

	want := []byte{0x0a, 0x02, 0xff, 0xd8, 0x11}
	want = binary.LittleEndian.AppendUint64(want, math.Float64bits(26.15))
	want = append(want, 0x19)
	want = binary.LittleEndian.AppendUint64(want, math.Float64bits(91.77))

	if got := req.Marshal(); !bytes.Equal(got, want) {
		t.Fatalf("Marshal() = %x, want %x", got, want)
	}
}

func TestImageRequest_ZeroFieldsOmitted(t *testing.T) {
	req := ImageRequest{ImageData: []byte{1}}
	if got := req.Marshal(); !bytes.Equal(got, []byte{0x0a, 0x01, 0x01}) {
		t.Errorf("Marshal() = %x", got)
	}

	if got := (&ImageRequest{}).Marshal(); len(got) != 0 {
		t.Errorf("empty request should encode to nothing, got %x", got)
	}
}

func TestDetectionResponse_MarshalBytes(t *testing.T) {
	resp := DetectionResponse{HazardType: "pothole", Priority: 2, Confidence: 0.5}

	want := append([]byte{0x0a, 0x07}, "pothole"...)
	want = append(want, 0x10, 0x02, 0x1d, 0x00, 0x00, 0x00, 0x3f)

	if got := resp.Marshal(); !bytes.Equal(got, want) {
		t.Fatalf("Marshal() = %x, want %x", got, want)
	}
}

func TestDetectionResponse_Unmarshal(t *testing.T) {
	resp := DetectionResponse{HazardType: "debris", Priority: 3, Confidence: 0.91}

	var got DetectionResponse
	if err := got.Unmarshal(resp.Marshal()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != resp {
		t.Errorf("Unmarshal() = %+v, want %+v", got, resp)
	}
}

func TestDetectionResponse_NegativePriority(t *testing.T) {
	resp := DetectionResponse{Priority: -1}
	b := resp.Marshal()
	if len(b) != 11 {
		t.Fatalf("negative int32 should use a ten byte varint, got %d bytes", len(b))
	}

	var got DetectionResponse
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Priority != -1 {
		t.Errorf("Priority = %d, want -1", got.Priority)
	}
}

func TestDetectionResponse_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendString(b, "extra")
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, 10, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)

	var got DetectionResponse
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Priority != 1 {
		t.Errorf("Priority = %d, want 1", got.Priority)
	}
}

func TestDetectionResponse_Truncated(t *testing.T) {
	b := (&DetectionResponse{HazardType: "pothole"}).Marshal()

	var got DetectionResponse
	if err := got.Unmarshal(b[:len(b)-2]); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestWireCodec(t *testing.T) {
	codec := wireCodec{}
	if codec.Name() != "proto" {
		t.Errorf("Name() = %q, want proto", codec.Name())
	}

	data, err := codec.Marshal(&ImageRequest{Latitude: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var req ImageRequest
	if err := codec.Unmarshal(data, &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if req.Latitude != 1 {
		t.Errorf("Latitude = %v, want 1", req.Latitude)
	}

	if _, err := codec.Marshal("not a message"); err == nil {
		t.Error("expected error for foreign type")
	}
}
