package channel

import (
	"encoding/json"
	"math"

	"github.com/kochabx/wsgate/errors"
)

// Command 注册控制命令
type Command int

const (
	CommandRegister   Command = 0
	CommandUnregister Command = 1
)

func (c Command) String() string {
	switch c {
	case CommandRegister:
		return "register"
	case CommandUnregister:
		return "unregister"
	}
	return "unknown"
}

// Envelope 文本控制消息 {"command":0|1,"pluginId":n,"channelId":n}
type Envelope struct {
	Command   Command `json:"command"`
	PluginID  uint16  `json:"pluginId"`
	ChannelID uint16  `json:"channelId"`
}

type rawEnvelope struct {
	Command   *int `json:"command"`
	PluginID  *int `json:"pluginId"`
	ChannelID *int `json:"channelId"`
}

// ParseEnvelope 解析控制消息
func ParseEnvelope(b []byte) (Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(b, &raw); err != nil {
		return Envelope{}, errors.Wrap(ErrMalformedFrame, 400, "envelope: %v", err)
	}
	if raw.PluginID == nil || raw.ChannelID == nil || !inRange(*raw.PluginID) || !inRange(*raw.ChannelID) {
		return Envelope{}, ErrMalformedFrame
	}
	if raw.Command == nil {
		return Envelope{}, ErrUnknownCommand
	}
	cmd := Command(*raw.Command)
	if cmd != CommandRegister && cmd != CommandUnregister {
		return Envelope{}, ErrUnknownCommand
	}
	return Envelope{Command: cmd, PluginID: uint16(*raw.PluginID), ChannelID: uint16(*raw.ChannelID)}, nil
}

// Encode 编码为 JSON 文本
func (e Envelope) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

func inRange(v int) bool {
	return v >= 0 && v <= math.MaxUint16
}
