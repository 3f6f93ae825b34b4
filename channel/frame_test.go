package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncode(t *testing.T) {
	b := Frame{PluginID: 2, ChannelID: 5, Payload: Text("hi")}.Encode()
	assert.Equal(t, []byte{2, 0, 5, 0, 1, 0, 'h', 'i'}, b)

	b = Frame{PluginID: 0x0102, ChannelID: 0x0304, Payload: Binary(nil)}.Encode()
	assert.Equal(t, []byte{0x02, 0x01, 0x04, 0x03, 0, 0}, b)
}

func TestFrameDecode(t *testing.T) {
	obj, err := Object(map[string]int{"n": 1})
	require.NoError(t, err)

	tests := []struct {
		name    string
		frame   Frame
		payload string
	}{
		{"binary", Frame{PluginID: 1, ChannelID: 9, Payload: Binary([]byte{0xff, 0})}, "\xff\x00"},
		{"text", Frame{PluginID: 3, Payload: Text("hello")}, "hello"},
		{"object", Frame{ChannelID: 65535, Payload: obj}, `{"n":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame(tt.frame.Encode())
			require.NoError(t, err)
			assert.Equal(t, tt.frame.PluginID, got.PluginID)
			assert.Equal(t, tt.frame.ChannelID, got.ChannelID)
			assert.Equal(t, tt.frame.Payload.Type(), got.Payload.Type())
			assert.Equal(t, tt.payload, got.Payload.String())
		})
	}
}

func TestFrameDecodeErrors(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 0, 2, 0, 1})
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = DecodeFrame([]byte{1, 0, 2, 0, 7, 0})
	assert.ErrorIs(t, err, ErrUnknownPayloadType)

	_, err = DecodeFrame([]byte{1, 0, 2, 0, 2, 0, '{'})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestPayloadDecode(t *testing.T) {
	p, err := Object(struct {
		Name string `json:"name"`
	}{"alice"})
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, p.Decode(&v))
	assert.Equal(t, "alice", v["name"])

	assert.Error(t, Text("x").Decode(&v))
	assert.Equal(t, "object", TypeObject.String())
	assert.Equal(t, "type(9)", PayloadType(9).String())
}

func TestErrorFrame(t *testing.T) {
	f, err := DecodeFrame(ErrorFrame(4, NoSession))
	require.NoError(t, err)
	assert.Equal(t, uint16(4), f.PluginID)
	assert.Equal(t, uint16(0), f.ChannelID)

	var body map[string]int
	require.NoError(t, f.Payload.Decode(&body))
	assert.Equal(t, -1, body["error"])
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"command":0,"pluginId":2,"channelId":5}`))
	require.NoError(t, err)
	assert.Equal(t, Envelope{Command: CommandRegister, PluginID: 2, ChannelID: 5}, env)

	env, err = ParseEnvelope(Envelope{Command: CommandUnregister, PluginID: 1, ChannelID: 3}.Encode())
	require.NoError(t, err)
	assert.Equal(t, CommandUnregister, env.Command)

	tests := []struct {
		input string
		want  error
	}{
		{`not json`, ErrMalformedFrame},
		{`{"command":0,"pluginId":2}`, ErrMalformedFrame},
		{`{"command":0,"pluginId":-1,"channelId":0}`, ErrMalformedFrame},
		{`{"command":0,"pluginId":0,"channelId":70000}`, ErrMalformedFrame},
		{`{"pluginId":0,"channelId":0}`, ErrUnknownCommand},
		{`{"command":7,"pluginId":0,"channelId":0}`, ErrUnknownCommand},
	}
	for _, tt := range tests {
		_, err := ParseEnvelope([]byte(tt.input))
		assert.ErrorIs(t, err, tt.want, tt.input)
	}
}
