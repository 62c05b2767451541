package skypack

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// TestEncodeRequest_NamedFields checks the request goes out as a map keyed
// by req, id and data.
func TestEncodeRequest_NamedFields(t *testing.T) {
	b, err := EncodeRequest(&Request{Kind: 46, ID: 7, Data: map[string]any{"x": 1}})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, msgpack.Unmarshal(b, &got))
	assert.EqualValues(t, 46, got["req"])
	assert.EqualValues(t, 7, got["id"])
	data, ok := got["data"].(map[string]any)
	require.True(t, ok, "data should decode as a map, got %T", got["data"])
	assert.EqualValues(t, 1, data["x"])
}

func TestEncodeRequest_OmitsNilData(t *testing.T) {
	b, err := EncodeRequest(&Request{Kind: KindTelemetry, ID: 1})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, msgpack.Unmarshal(b, &got))
	_, ok := got["data"]
	assert.False(t, ok)
	assert.Len(t, got, 2)
}

func TestEncodeRequest_Unencodable(t *testing.T) {
	_, err := EncodeRequest(&Request{Kind: 1, ID: 1, Data: make(chan int)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncode))
}

func TestEncodeRequest_LargeID(t *testing.T) {
	const id = ^uint64(0) - 3
	b, err := EncodeRequest(&Request{Kind: 9, ID: id})
	require.NoError(t, err)

	req, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(id), req.ID)
}

// TestDecodeResponse exercises response parsing.
func TestDecodeResponse(t *testing.T) {
	t.Run("ok with data", func(t *testing.T) {
		b, err := EncodeResponse(&Response{Kind: 9, ID: 42, Status: 0, Data: map[string]any{"nav": []float64{1, 2, 3}}})
		require.NoError(t, err)

		resp, err := DecodeResponse(b)
		require.NoError(t, err)
		assert.Equal(t, Key{Kind: 9, ID: 42}, resp.Key())
		assert.True(t, resp.OK())

		want := map[string]any{"nav": []any{1.0, 2.0, 3.0}}
		if diff := cmp.Diff(want, resp.Data); diff != "" {
			t.Errorf("data mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("negative status", func(t *testing.T) {
		b, err := EncodeResponse(&Response{Kind: 46, ID: 3, Status: -5})
		require.NoError(t, err)

		resp, err := DecodeResponse(b)
		require.NoError(t, err)
		assert.Equal(t, int32(-5), resp.Status)
		assert.False(t, resp.OK())
		assert.Nil(t, resp.Data)
	})

	t.Run("extra fields ignored", func(t *testing.T) {
		b, err := msgpack.Marshal(map[string]any{"req": 9, "id": 1, "res": 0, "extra": "x"})
		require.NoError(t, err)

		resp, err := DecodeResponse(b)
		require.NoError(t, err)
		assert.Equal(t, Key{Kind: 9, ID: 1}, resp.Key())
	})

	t.Run("attempts and rtt are not on the wire", func(t *testing.T) {
		b, err := EncodeResponse(&Response{Kind: 1, ID: 1, Attempts: 3, RTT: 5})
		require.NoError(t, err)

		resp, err := DecodeResponse(b)
		require.NoError(t, err)
		assert.Zero(t, resp.Attempts)
		assert.Zero(t, resp.RTT)
	})
}

// TestDecodeResponse_Malformed checks that bad datagrams fail with ErrDecode.
func TestDecodeResponse_Malformed(t *testing.T) {
	valid, err := EncodeResponse(&Response{Kind: 9, ID: 42, Data: "payload"})
	require.NoError(t, err)

	missing := func(field string) []byte {
		m := map[string]any{"req": 9, "id": 42, "res": 0}
		delete(m, field)
		b, err := msgpack.Marshal(m)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xc1, 0xc1, 0xc1}},
		{"truncated", valid[:len(valid)-3]},
		{"not a map", []byte{0x93, 0x01, 0x02, 0x03}},
		{"missing req", missing("req")},
		{"missing id", missing("id")},
		{"missing res", missing("res")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode), "got %v", err)
			assert.Nil(t, resp)
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	b, err := EncodeRequest(&Request{Kind: 46, ID: 11, Data: []int{1, 2}})
	require.NoError(t, err)

	req, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, Key{Kind: 46, ID: 11}, req.Key())
	if diff := cmp.Diff([]any{int64(1), int64(2)}, req.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	noID, err := msgpack.Marshal(map[string]any{"req": 46})
	require.NoError(t, err)
	_, err = DecodeRequest(noID)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "46/123", Key{Kind: 46, ID: 123}.String())
}
