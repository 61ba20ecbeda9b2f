package protocol

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("call with params", func(t *testing.T) {
		msg, err := Parse([]byte(`{"id":1,"method":"Runtime.evaluate","params":{"expression":"1+1"}}`))
		require.NoError(t, err)
		assert.Equal(t, KindCall, msg.Kind)
		assert.Equal(t, int64(1), msg.ID)
		assert.Equal(t, "Runtime.evaluate", msg.Method)
		assert.JSONEq(t, `{"expression":"1+1"}`, string(msg.Params))
	})

	t.Run("call without params keeps params absent", func(t *testing.T) {
		msg, err := Parse([]byte(`{"id":2,"method":"Browser.getVersion"}`))
		require.NoError(t, err)
		assert.Equal(t, KindCall, msg.Kind)
		assert.Nil(t, msg.Params)
	})

	t.Run("event", func(t *testing.T) {
		msg, err := Parse([]byte(`{"method":"Page.loadEventFired","params":{"timestamp":12.5}}`))
		require.NoError(t, err)
		assert.Equal(t, KindEvent, msg.Kind)
		assert.Equal(t, "Page.loadEventFired", msg.Method)
	})

	t.Run("result", func(t *testing.T) {
		msg, err := Parse([]byte(`{"id":7,"result":{}}`))
		require.NoError(t, err)
		assert.Equal(t, KindResult, msg.Kind)
		assert.Equal(t, int64(7), msg.ID)
		assert.JSONEq(t, `{}`, string(msg.Result))
	})

	t.Run("error response", func(t *testing.T) {
		msg, err := Parse([]byte(`{"id":3,"error":{"code":-32601,"message":"method not found"}}`))
		require.NoError(t, err)
		assert.Equal(t, KindError, msg.Kind)
		require.NotNil(t, msg.Error)
		assert.Equal(t, int64(-32601), msg.Error.Code)
		assert.Equal(t, "method not found", msg.Error.Message)
	})

	t.Run("session id carried through", func(t *testing.T) {
		msg, err := Parse([]byte(`{"id":4,"method":"DOM.getDocument","sessionId":"abc"}`))
		require.NoError(t, err)
		assert.Equal(t, "abc", msg.SessionID)
	})
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `this is not json`,
		"json array":        `[1,2,3]`,
		"json scalar":       `"hello"`,
		"empty object":      `{}`,
		"id only":           `{"id":9}`,
		"method not string": `{"id":1,"method":42}`,
		"result without id": `{"result":{}}`,
		"error without id":  `{"error":{"code":1,"message":"x"}}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	messages := []*Message{
		NewCall(1, "Runtime.evaluate", jsoniter.RawMessage(`{"expression":"1+1"}`)),
		NewCall(2, "Browser.getVersion", nil),
		NewResult(3, jsoniter.RawMessage(`{"value":42}`)),
		NewEvent("Network.requestWillBeSent", jsoniter.RawMessage(`{"requestId":"r1"}`)),
		NewEvent("Inspector.detached", nil),
		NewError(4, -32000, "boom"),
	}

	for _, original := range messages {
		t.Run(original.Kind.String(), func(t *testing.T) {
			frame, err := original.Serialize()
			require.NoError(t, err)

			parsed, err := Parse(frame)
			require.NoError(t, err)
			assert.Equal(t, original, parsed)
		})
	}
}

func TestSerializeOmitsAbsentFields(t *testing.T) {
	frame, err := NewCall(5, "Page.enable", nil).Serialize()
	require.NoError(t, err)
	assert.NotContains(t, string(frame), "params")
	assert.NotContains(t, string(frame), "result")
	assert.NotContains(t, string(frame), "error")
	assert.NotContains(t, string(frame), "sessionId")
}

func TestIsResponse(t *testing.T) {
	assert.True(t, NewResult(1, EmptyResult()).IsResponse())
	assert.True(t, NewError(1, -1, "x").IsResponse())
	assert.False(t, NewCall(1, "m", nil).IsResponse())
	assert.False(t, NewEvent("m", nil).IsResponse())
}
