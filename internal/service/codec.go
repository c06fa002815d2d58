package service

import (
	"connectrpc.com/connect"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonCodec marshals plain Go message structs. It is registered under the
// name "json" so it replaces connect's protobuf-only JSON codec and serves
// application/json requests.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	return json.Unmarshal(data, message)
}

// WithJSON configures a client or handler to speak JSON over plain structs.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
