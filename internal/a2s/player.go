package a2s

import (
	"fmt"

	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/wire"
)

const typePlayer = 0x44

// PlayerInfo is one entry of an A2S_PLAYER reply.
type PlayerInfo struct {
	Index         uint8
	Name          string
	Kills         int32
	TimeConnected float32 // seconds
}

// ParsePlayers decodes an A2S_PLAYER reply (header ‖ 0x44 ‖ count:u8 ‖
// N×PlayerInfo).
func ParsePlayers(buf []byte) ([]PlayerInfo, error) {
	if len(buf) < 6 {
		return nil, &verr.FormatError{Context: "A2S_PLAYER reply", Input: fmt.Sprintf("%d bytes", len(buf))}
	}
	if buf[4] != typePlayer {
		return nil, &verr.FormatError{Context: "A2S_PLAYER type byte", Input: fmt.Sprintf("%#x", buf[4])}
	}

	count, err := wire.Uint8(buf, 5)
	if err != nil {
		return nil, fieldErr("player count", err)
	}

	off := 6
	players := make([]PlayerInfo, 0, count)
	for i := 0; i < int(count); i++ {
		var p PlayerInfo

		if p.Index, err = wire.Uint8(buf, off); err != nil {
			return nil, fieldErr("player index", err)
		}
		off++

		if p.Name, err = wire.ReadCString(buf, &off); err != nil {
			return nil, fieldErr("player name", err)
		}

		if p.Kills, err = wire.Int32LE(buf, off); err != nil {
			return nil, fieldErr("player kills", err)
		}
		off += 4

		if p.TimeConnected, err = wire.Float32LE(buf, off); err != nil {
			return nil, fieldErr("player time connected", err)
		}
		off += 4

		players = append(players, p)
	}

	return players, nil
}
