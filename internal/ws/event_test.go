package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundKnownEvents(t *testing.T) {
	ev, err := DecodeInbound([]byte(`{"event":"chat:join","data":{"chatId":7}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Join)
	assert.Equal(t, 7, ev.Join.ChatID)

	ev, err = DecodeInbound([]byte(`{"event":"message:send","data":{"chatId":3,"content":"hi","replyToId":12}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Send)
	assert.Equal(t, 3, ev.Send.ChatID)
	require.NotNil(t, ev.Send.ReplyToID)
	assert.Equal(t, 12, *ev.Send.ReplyToID)

	ev, err = DecodeInbound([]byte(`{"event":"message:typing","data":{"chatId":3,"isTyping":true}}`))
	require.NoError(t, err)
	require.NotNil(t, ev.Typing)
	assert.True(t, ev.Typing.IsTyping)

	ev, err = DecodeInbound([]byte(`{"event":"user:online"}`))
	require.NoError(t, err)
	assert.Equal(t, EvUserOnline, ev.Kind)
}

func TestDecodeInboundRejectsUnknownEvent(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"event":"admin:shutdown","data":{}}`))
	require.Error(t, err)
}

func TestDecodeInboundRejectsMalformedFrames(t *testing.T) {
	_, err := DecodeInbound([]byte(`not json`))
	require.Error(t, err)

	_, err = DecodeInbound([]byte(`{"event":"chat:join","data":"nope"}`))
	require.Error(t, err)
}

func TestEncodeEventRoundTrip(t *testing.T) {
	raw := encodeEvent(EvUserStatus, UserStatusPayload{UserID: 4, IsOnline: true})
	require.NotNil(t, raw)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EvUserStatus, env.Event)

	var payload UserStatusPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, 4, payload.UserID)
	assert.True(t, payload.IsOnline)
}
