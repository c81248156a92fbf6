package model

import (
	"errors"
	"strings"
)

// Codec is the output video codec.
type Codec string

const (
	CodecH264 Codec = "H264"
	CodecHEVC Codec = "HEVC"
)

// ErrUnknownCodec is returned when a codec string does not name a supported codec.
var ErrUnknownCodec = errors.New("unknown codec")

// ParseCodec parses a codec name. An empty string selects CodecH264;
// anything else that is not recognised is rejected.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return CodecH264, nil
	case "H264", "AVC", "H.264":
		return CodecH264, nil
	case "HEVC", "H265", "H.265":
		return CodecHEVC, nil
	default:
		return "", ErrUnknownCodec
	}
}

func (c Codec) IsValid() bool {
	switch c {
	case CodecH264, CodecHEVC:
		return true
	default:
		return false
	}
}

func (c Codec) String() string {
	return string(c)
}
