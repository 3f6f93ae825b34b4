package channel

import "github.com/kochabx/wsgate/errors"

var (
	ErrMalformedFrame     = errors.BadRequest("malformed frame")
	ErrUnknownPayloadType = errors.BadRequest("unknown payload type")
	ErrUnknownChannel     = errors.NotFound("unknown channel")
	ErrUnknownCommand     = errors.BadRequest("unknown command")
	ErrUnknownPlugin      = errors.NotFound("unknown plugin")
)
