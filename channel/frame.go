package channel

import (
	"encoding/binary"
	"strconv"
)

// HeaderSize pluginId、channelId、payloadType 各两字节，小端
const HeaderSize = 6

// Frame 一个数据帧
type Frame struct {
	PluginID  uint16
	ChannelID uint16
	Payload   Payload
}

// Key 返回帧所属通道的标识 "<pluginId>_<channelId>"
func (f Frame) Key() string {
	return channelKey(f.PluginID, f.ChannelID)
}

// Encode 编码为 [pluginId][channelId][type][payload]
func (f Frame) Encode() []byte {
	b := make([]byte, HeaderSize+len(f.Payload.data))
	putHeader(b, f.PluginID, f.ChannelID)
	binary.LittleEndian.PutUint16(b[4:], uint16(f.Payload.kind))
	copy(b[HeaderSize:], f.Payload.data)
	return b
}

// DecodeFrame 解析数据帧，负载与 b 共享底层数组
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, ErrMalformedFrame
	}
	p, err := decodePayload(PayloadType(binary.LittleEndian.Uint16(b[4:])), b[HeaderSize:])
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		PluginID:  binary.LittleEndian.Uint16(b[0:]),
		ChannelID: binary.LittleEndian.Uint16(b[2:]),
		Payload:   p,
	}, nil
}

func putHeader(b []byte, pluginID, channelID uint16) {
	binary.LittleEndian.PutUint16(b[0:], pluginID)
	binary.LittleEndian.PutUint16(b[2:], channelID)
}

func channelKey(pluginID, channelID uint16) string {
	return strconv.Itoa(int(pluginID)) + "_" + strconv.Itoa(int(channelID))
}

// NoSession 错误帧中的错误码
const NoSession = -1

// ErrorFrame 在 pluginId 的 0 号通道上发送 {"error": code}
func ErrorFrame(pluginID uint16, code int) []byte {
	return Frame{
		PluginID: pluginID,
		Payload:  RawObject([]byte(`{"error":` + strconv.Itoa(code) + `}`)),
	}.Encode()
}
