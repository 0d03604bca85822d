// Package rpc defines the daemon's gRPC surface: message types, service
// descriptors and typed clients. Messages are plain Go structs carried with a
// JSON codec instead of generated protobuf code.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used by every admiral call.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallOption selects the JSON codec on a client connection.
func CallOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))
}
