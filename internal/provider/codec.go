package provider

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered as a gRPC content-subtype so GRPCGateway can
// call the sidecar via google.golang.org/grpc's raw ClientConn.Invoke
// without a protoc-generated client: protoc could not be run in this
// environment, so request/response messages are plain Go structs encoded
// with encoding/json (exported field names as keys), carried over the same
// gRPC framing and multiplexing instead of a
// generated protobuf codec (see DESIGN.md). Invoke/NewStream are the same
// public entry points a generated stub would call into.
const jsonCodecName = "genengine-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return jsonCodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("provider: json codec marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("provider: json codec unmarshal: %w", err)
	}
	return nil
}
