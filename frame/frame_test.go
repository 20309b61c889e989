package frame

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponse(t *testing.T) {
	d := Decode([]byte(`{"type":"res","id":"7","ok":true,"payload":{"type":"hello-ok"}}`))
	require.Equal(t, KindResponse, d.Kind)
	require.NotNil(t, d.Response)
	assert.Equal(t, "7", d.Response.ID)
	assert.True(t, d.Response.OK)
	assert.JSONEq(t, `{"type":"hello-ok"}`, string(d.Response.Payload))
	assert.Nil(t, d.Event)
}

func TestDecodeResponseError(t *testing.T) {
	d := Decode([]byte(`{"type":"res","id":"3","ok":false,"error":{"code":"auth","message":"bad token"}}`))
	require.Equal(t, KindResponse, d.Kind)
	require.NotNil(t, d.Response.Error)
	assert.Equal(t, "bad token", d.Response.ErrorMessage("fallback"))
}

func TestResponseErrorMessageFallback(t *testing.T) {
	res := &Response{}
	assert.Equal(t, "fallback", res.ErrorMessage("fallback"))

	res.Error = &ErrorDetail{Code: "oops"}
	assert.Equal(t, "fallback", res.ErrorMessage("fallback"))
}

func TestDecodeEvent(t *testing.T) {
	d := Decode([]byte(`{"type":"event","event":"chat","payload":{"state":"delta","delta":"Hi"}}`))
	require.Equal(t, KindEvent, d.Kind)
	require.NotNil(t, d.Event)
	assert.Equal(t, "chat", d.Event.Event)
	assert.Nil(t, d.Response)
}

func TestDecodeEventWithoutPayload(t *testing.T) {
	d := Decode([]byte(`{"type":"event","event":"connect.challenge"}`))
	require.Equal(t, KindEvent, d.Kind)
	assert.Equal(t, "connect.challenge", d.Event.Event)
	assert.Nil(t, d.Event.Payload)
}

func TestDecodeUnknown(t *testing.T) {
	cases := map[string][]byte{
		"request frame":     []byte(`{"type":"req","id":"1","method":"x"}`),
		"unknown type":      []byte(`{"type":"banana"}`),
		"missing type":      []byte(`{"id":"1"}`),
		"not json":          []byte(`hello`),
		"empty input":       nil,
		"malformed variant": []byte(`{"type":"res","id":5}`),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			d := Decode(data)
			assert.Equal(t, KindUnknown, d.Kind)
			assert.Nil(t, d.Response)
			assert.Nil(t, d.Event)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "response", KindResponse.String())
	assert.Equal(t, "event", KindEvent.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestEncodeRequestWithParams(t *testing.T) {
	params, err := Params(map[string]any{"limit": 10})
	require.NoError(t, err)

	data, err := EncodeRequest("42", "sessions.list", params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"req","id":"42","method":"sessions.list","params":{"limit":10}}`, string(data))
}

func TestEncodeRequestOmitsEmptyParams(t *testing.T) {
	for name, params := range map[string]json.RawMessage{
		"nil":          nil,
		"empty":        json.RawMessage(""),
		"null":         json.RawMessage("null"),
		"empty object": json.RawMessage("{}"),
		"whitespace":   json.RawMessage("  {}  "),
	} {
		t.Run(name, func(t *testing.T) {
			data, err := EncodeRequest("1", "ping", params)
			require.NoError(t, err)

			var decoded map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &decoded))
			_, present := decoded["params"]
			assert.False(t, present, "params key must be absent, got %s", data)
		})
	}
}

func TestEncodeRequestRoundTrip(t *testing.T) {
	data, err := EncodeRequest("1", "ping", nil)
	require.NoError(t, err)

	var req Request
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, TypeRequest, req.Type)
	assert.Equal(t, "1", req.ID)
	assert.Equal(t, "ping", req.Method)
	assert.Nil(t, req.Params)
}

func TestParamsNil(t *testing.T) {
	raw, err := Params(nil)
	assert.NoError(t, err)
	assert.Nil(t, raw)
}
