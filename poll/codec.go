package poll

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/seenn-io/seenn-go/job"
)

// Codec decodes job snapshot response bodies. The codec's content type is
// sent in the Accept header so the server can negotiate the format.
type Codec interface {
	// Decode deserializes a snapshot body into a record.
	Decode(data []byte, rec *job.Record) error

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string

	// ContentType returns the MIME type for content negotiation.
	ContentType() string
}

// Codec name constants.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return &MsgpackCodec{}
	default:
		return &JSONCodec{}
	}
}

// JSONCodec decodes snapshots as JSON.
type JSONCodec struct{}

func (c *JSONCodec) Decode(data []byte, rec *job.Record) error {
	return json.Unmarshal(data, rec)
}

func (c *JSONCodec) Name() string { return CodecNameJSON }

func (c *JSONCodec) ContentType() string { return "application/json" }

// MsgpackCodec decodes snapshots as MessagePack.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Decode(data []byte, rec *job.Record) error {
	return msgpack.Unmarshal(data, rec)
}

func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }

func (c *MsgpackCodec) ContentType() string { return "application/msgpack" }
