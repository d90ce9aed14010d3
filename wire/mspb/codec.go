// Package mspb holds the wire message types and gRPC service
// descriptors for msserve (spec.md §6). Real protoc-generated bindings
// need a .proto compile step this exercise cannot run; instead the
// messages are plain Go structs carried over grpc using a small JSON
// codec registered with google.golang.org/grpc's pluggable encoding
// package, so the actual transport (framing, HTTP/2, deadlines,
// streaming, TLS) is the real grpc-go library end to end, only the
// payload codec differs from the upstream "proto" default.
package mspb

import (
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc/encoding"
)

const CodecName = "msjson"

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return jsonAPI.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return jsonAPI.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
