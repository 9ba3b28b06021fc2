package calling

import (
	"fmt"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const ulawBias = 0x84

// decodePacket turns one G.711 RTP packet into linear PCM.
func decodePacket(mimeType string, pkt *rtp.Packet) ([]int16, error) {
	if pkt == nil || len(pkt.Payload) == 0 {
		return nil, nil
	}
	switch mimeType {
	case webrtc.MimeTypePCMU:
		return decodeULaw(pkt.Payload), nil
	case webrtc.MimeTypePCMA:
		return decodeALaw(pkt.Payload), nil
	default:
		return nil, fmt.Errorf("unsupported incoming codec: %s", mimeType)
	}
}

func decodeULaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = uLawToLinear(b)
	}
	return out
}

func decodeALaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = aLawToLinear(b)
	}
	return out
}

func uLawToLinear(b byte) int16 {
	b = ^b
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	value := ((int(mantissa) << 3) + ulawBias) << exponent
	value -= ulawBias
	if b&0x80 != 0 {
		value = -value
	}
	return clamp16(value)
}

func aLawToLinear(b byte) int16 {
	b ^= 0x55
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	value := int(mantissa) << 4
	if exponent == 0 {
		value += 8
	} else {
		value += 0x108
		value <<= exponent - 1
	}
	if b&0x80 == 0 {
		value = -value
	}
	return clamp16(value)
}

func clamp16(v int) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
