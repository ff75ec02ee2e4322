package models

import jsoniter "github.com/json-iterator/go"

// jsonCodec is the shared codec for every hand-written Marshal/Unmarshal
// method in this package. jsoniter.ConfigCompatibleWithStandardLibrary
// matches encoding/json's struct-tag semantics exactly, so the PascalCase
// tags on this package's structs round-trip the same way they would under encoding/json — it's
// used here purely for the decode-speed win on high-frequency wire traffic.
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

func jsonUnmarshal(data []byte, v any) error {
	return jsonCodec.Unmarshal(data, v)
}

func jsonMarshal(v any) ([]byte, error) {
	return jsonCodec.Marshal(v)
}
