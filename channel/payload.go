package channel

import (
	"encoding/json"
	"strconv"

	"github.com/kochabx/wsgate/errors"
)

// PayloadType 帧中负载的类型标记
type PayloadType uint16

const (
	TypeBinary PayloadType = 0
	TypeText   PayloadType = 1
	TypeObject PayloadType = 2
)

func (t PayloadType) String() string {
	switch t {
	case TypeBinary:
		return "binary"
	case TypeText:
		return "text"
	case TypeObject:
		return "object"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Payload 三种负载之一：原始字节、UTF-8 文本或 JSON 对象
type Payload struct {
	kind PayloadType
	data []byte
}

// Binary 原始字节负载
func Binary(b []byte) Payload {
	return Payload{kind: TypeBinary, data: b}
}

// Text 文本负载
func Text(s string) Payload {
	return Payload{kind: TypeText, data: []byte(s)}
}

// Object 把 v 编码为 JSON 对象负载
func Object(v any) (Payload, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Payload{}, errors.Wrap(err, 400, "encode object payload")
	}
	return Payload{kind: TypeObject, data: b}, nil
}

// RawObject 使用已编码的 JSON 作为对象负载
func RawObject(b json.RawMessage) Payload {
	return Payload{kind: TypeObject, data: b}
}

func (p Payload) Type() PayloadType {
	return p.kind
}

// Bytes 返回编码后的负载字节
func (p Payload) Bytes() []byte {
	return p.data
}

// String 返回文本内容，其它类型返回原始字节的字符串形式
func (p Payload) String() string {
	return string(p.data)
}

// Decode 把对象负载解码到 v
func (p Payload) Decode(v any) error {
	if p.kind != TypeObject {
		return errors.BadRequest("payload is %s, not object", p.kind)
	}
	if err := json.Unmarshal(p.data, v); err != nil {
		return errors.Wrap(err, 400, "decode object payload")
	}
	return nil
}

// decodePayload 按类型标记还原负载
func decodePayload(t PayloadType, b []byte) (Payload, error) {
	switch t {
	case TypeBinary, TypeText:
	case TypeObject:
		if !json.Valid(b) {
			return Payload{}, ErrMalformedFrame
		}
	default:
		return Payload{}, ErrUnknownPayloadType
	}
	return Payload{kind: t, data: b}, nil
}
