package skypack

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// maxDatagramSize is the largest UDP payload the receiver accepts.
const maxDatagramSize = 65536

// Key identifies one in-flight exchange.
type Key struct {
	Kind uint32
	ID   uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.Kind, k.ID)
}

// Request is an outbound request record. Data is any value msgpack can
// encode; a nil Data is left off the wire.
type Request struct {
	Kind uint32 `msgpack:"req"`
	ID   uint64 `msgpack:"id"`
	Data any    `msgpack:"data,omitempty"`
}

// Key returns the correlation key of the request.
func (r *Request) Key() Key { return Key{Kind: r.Kind, ID: r.ID} }

// Response is a decoded response record. Status 0 is success; any other
// value is a failure reported by the device.
type Response struct {
	Kind   uint32
	ID     uint64
	Status int32
	Data   any

	// Attempts is the number of sends it took to get this response.
	Attempts int
	// RTT is measured from the first send.
	RTT time.Duration
}

// Key returns the correlation key of the response.
func (r *Response) Key() Key { return Key{Kind: r.Kind, ID: r.ID} }

// OK reports whether the device reported success.
func (r *Response) OK() bool { return r.Status == 0 }

// responseRecord is the wire shape of a response. Pointer fields let decode
// tell a missing field from a zero one.
type responseRecord struct {
	Kind   *uint32 `msgpack:"req"`
	ID     *uint64 `msgpack:"id"`
	Status *int32  `msgpack:"res"`
	Data   any     `msgpack:"data"`
}

// requestRecord is the decode-side shape of a request, used by devices.
type requestRecord struct {
	Kind *uint32 `msgpack:"req"`
	ID   *uint64 `msgpack:"id"`
	Data any     `msgpack:"data"`
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	// numbers inside payloads come back as int64, uint64 or float64
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

// EncodeRequest serializes a request as a MessagePack map with named fields.
func EncodeRequest(r *Request) ([]byte, error) {
	b, err := marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %w", ErrEncode, r.Key(), err)
	}
	return b, nil
}

// DecodeResponse parses a datagram into a Response. Truncated or malformed
// input, or a record missing req, id or res, fails with ErrDecode.
func DecodeResponse(b []byte) (*Response, error) {
	var rec responseRecord
	if err := unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	switch {
	case rec.Kind == nil:
		return nil, fmt.Errorf("%w: response has no req field", ErrDecode)
	case rec.ID == nil:
		return nil, fmt.Errorf("%w: response has no id field", ErrDecode)
	case rec.Status == nil:
		return nil, fmt.Errorf("%w: response has no res field", ErrDecode)
	}
	return &Response{Kind: *rec.Kind, ID: *rec.ID, Status: *rec.Status, Data: rec.Data}, nil
}

// EncodeResponse serializes a response record. Only the wire fields are
// written; Attempts and RTT are local bookkeeping.
func EncodeResponse(r *Response) ([]byte, error) {
	b, err := marshal(struct {
		Kind   uint32 `msgpack:"req"`
		ID     uint64 `msgpack:"id"`
		Status int32  `msgpack:"res"`
		Data   any    `msgpack:"data"`
	}{r.Kind, r.ID, r.Status, r.Data})
	if err != nil {
		return nil, fmt.Errorf("%w: response %s: %w", ErrEncode, r.Key(), err)
	}
	return b, nil
}

// DecodeRequest parses a request datagram, as a device would.
func DecodeRequest(b []byte) (*Request, error) {
	var rec requestRecord
	if err := unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if rec.Kind == nil || rec.ID == nil {
		return nil, fmt.Errorf("%w: request needs req and id fields", ErrDecode)
	}
	return &Request{Kind: *rec.Kind, ID: *rec.ID, Data: rec.Data}, nil
}
