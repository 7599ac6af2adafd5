package transport

import "github.com/hlstat/valveq/pkg/wire"

// EmptyChallenge is the sentinel value a server returns for a still-unset
// challenge: 0xFFFFFFFF interpreted as a signed 32-bit integer.
const EmptyChallenge int32 = -1

var singlePacketPrefix = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// PingRequest builds the A2S ping request body.
func PingRequest() []byte {
	return wire.Concat(singlePacketPrefix, []byte{0x69})
}

// PingSucceeded reports whether reply is a valid ping response (byte at
// offset 4 is 0x6A).
func PingSucceeded(reply []byte) bool {
	return len(reply) > 4 && reply[4] == 0x6A
}

// ChallengeRequest builds the A2S get-challenge request body.
func ChallengeRequest() []byte {
	return wire.Concat(singlePacketPrefix, []byte{0x55, 0xFF, 0xFF, 0xFF, 0xFF})
}

// InfoRequest builds the A2S_INFO request body.
func InfoRequest() []byte {
	return wire.Concat(singlePacketPrefix, []byte{0x54}, []byte("Source Engine Query\x00"))
}

// PlayersRequest builds the A2S_PLAYER request body using a 4-byte
// little-endian challenge value.
func PlayersRequest(challenge [4]byte) []byte {
	return wire.Concat(singlePacketPrefix, []byte{0x55}, challenge[:])
}

// RulesRequest builds the A2S_RULES request body using a 4-byte
// little-endian challenge value.
func RulesRequest(challenge [4]byte) []byte {
	return wire.Concat(singlePacketPrefix, []byte{0x56}, challenge[:])
}

// ParseChallenge extracts the 4-byte challenge from a get-challenge reply of
// the form header ‖ 0x41 ‖ challenge:4. It returns ok=false if reply does
// not match that shape.
func ParseChallenge(reply []byte) (challenge [4]byte, ok bool) {
	if len(reply) < 9 || reply[4] != 0x41 {
		return challenge, false
	}
	copy(challenge[:], reply[5:9])
	return challenge, true
}
