// Package rpc carries the thin gRPC transport for the inter-component
// connections of spec §6 (NodeAgentConnection, StateManagerConnection,
// ActionControllerConnection). These wrappers are explicitly out of scope
// per spec §1 ("thin gRPC service wrappers that merely deserialize and
// forward"): the message shapes and validation logic live in internal/proto
// and internal/transition; this package only moves bytes.
//
// The messages are plain Go structs rather than protoc-generated types, so
// the transport uses a JSON codec registered under gRPC's content-subtype
// mechanism instead of the default protobuf codec.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CodecName is the gRPC content-subtype every PICCOLO client/server uses.
const CodecName = codecName
