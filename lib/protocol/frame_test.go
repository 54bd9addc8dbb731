package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 512, 65536} {
		payload := bytes.Repeat([]byte{0xAB}, size)

		var buf bytes.Buffer
		req := &Request{Seq: 42, Payload: payload}
		require.NoError(t, req.WriteTo(&buf))

		got, err := ReadRequest(&buf)
		require.NoError(t, err)
		require.Equal(t, uint64(42), got.Seq)
		require.Len(t, got.Payload, size)
	}
}

func TestRequestEmptyPayloadStopsAtHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Request{Seq: 7}).WriteTo(&buf))
	require.Equal(t, 12, buf.Len())

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(7), got.Seq)
	require.Empty(t, got.Payload)
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	res := &Response{Ack: 9, Code: CodeLoginFailed, Payload: []byte("nope")}
	require.NoError(t, res.WriteTo(&buf))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(9), got.Ack)
	require.Equal(t, CodeLoginFailed, got.Code)
	require.Equal(t, []byte("nope"), got.Payload)
}

func TestReadRequestTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Request{Seq: 1, Payload: []byte("abcdef")}).WriteTo(&buf))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-2])
	_, err := ReadRequest(truncated)
	require.ErrorContains(t, err, "truncated")
}

func TestReadRequestOversizedFrame(t *testing.T) {
	var header [12]byte
	binary.BigEndian.PutUint64(header[0:8], 1)
	binary.BigEndian.PutUint32(header[8:12], MaxPayloadSize+1)

	_, err := ReadRequest(bytes.NewReader(header[:]))
	require.ErrorContains(t, err, "frame limit")
}

func TestPayloadUnionRoundTrip(t *testing.T) {
	body := ScoreListRequest{
		Credential: Credential{Account: "1910100000", Password: "secret"},
		SchoolYear: 2021,
		Semester:   "3",
	}
	data, err := EncodeRequest(KindScoreList, body)
	require.NoError(t, err)

	payload, err := DecodeRequest(data)
	require.NoError(t, err)
	require.Equal(t, KindScoreList, payload.Kind)

	var got ScoreListRequest
	require.NoError(t, payload.DecodeBody(&got))
	require.Equal(t, body, got)
}

func TestDecodeRequestUnknownKind(t *testing.T) {
	data, err := EncodeRequest(Kind(200), nil)
	require.NoError(t, err)

	payload, err := DecodeRequest(data)
	require.NoError(t, err)
	require.False(t, payload.Kind.Known())
	require.True(t, KindPing.Known())
}

func TestDecodeBodyMissing(t *testing.T) {
	data, err := EncodeRequest(KindPing, nil)
	require.NoError(t, err)

	payload, err := DecodeRequest(data)
	require.NoError(t, err)

	var ping PingRequest
	require.ErrorContains(t, payload.DecodeBody(&ping), "no body")
}
