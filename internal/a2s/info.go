// Package a2s decodes the binary A2S_INFO, A2S_PLAYER, and A2S_RULES reply
// bodies (spec.md §3, §4.3). Every parser here is handed the full reply
// buffer exactly as returned by internal/transport.Transport.Query,
// including its leading FF FF FF FF marker.
package a2s

import (
	"fmt"

	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/wire"
)

const (
	typeSource  = 0x49
	typeGoldSrc = 0x6D
)

// ModInfo is the optional GoldSrc mod sub-record, present iff IsMod is set.
type ModInfo struct {
	InfoURL         string
	DownloadURL     string
	Version         int32
	Size            int32
	ServerOnly      bool
	CustomClientDLL bool
}

// ServerInfo is the union of the Source (0x49) and GoldSrc (0x6D) A2S_INFO
// reply variants; fields not populated by the variant that produced a given
// ServerInfo are left at their zero value (spec.md §3 table).
type ServerInfo struct {
	IsGoldSrc bool

	Protocol byte

	Name            string
	Map             string
	GameDir         string
	GameDescription string

	// GoldSrc only.
	GameIP string

	// Source only.
	AppID int16

	NumPlayers byte
	MaxPlayers byte
	NumBots    byte
	Dedicated  byte
	OS         byte
	Password   bool
	Secure     bool

	// Source only.
	GameVersion    string
	ExtraDataFlags byte

	// GoldSrc only.
	IsMod bool
	Mod   *ModInfo
}

// ParseServerInfo decodes a reply buffer into a ServerInfo, dispatching on
// the type byte at offset 4.
func ParseServerInfo(buf []byte) (*ServerInfo, error) {
	if len(buf) < 5 {
		return nil, &verr.FormatError{Context: "A2S_INFO reply", Input: fmt.Sprintf("%d bytes", len(buf))}
	}

	typ := buf[4]
	switch typ {
	case typeSource:
		return parseSourceInfo(buf)
	case typeGoldSrc:
		return parseGoldSrcInfo(buf)
	default:
		return nil, &verr.FormatError{Context: "A2S_INFO type byte", Input: fmt.Sprintf("%#x", typ)}
	}
}

func parseSourceInfo(buf []byte) (*ServerInfo, error) {
	off := 5
	info := &ServerInfo{}

	var err error
	if info.Protocol, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("protocol", err)
	}
	off++

	if info.Name, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("name", err)
	}
	if info.Map, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("map", err)
	}
	if info.GameDir, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("game dir", err)
	}
	if info.GameDescription, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("game description", err)
	}

	appID, err := wire.Int16LE(buf, off)
	if err != nil {
		return nil, fieldErr("app id", err)
	}
	info.AppID = appID
	off += 2

	if info.NumPlayers, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("num players", err)
	}
	off++
	if info.MaxPlayers, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("max players", err)
	}
	off++
	if info.NumBots, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("num bots", err)
	}
	off++
	if info.Dedicated, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("dedicated", err)
	}
	off++
	if info.OS, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("os", err)
	}
	off++

	passB, err := wire.Uint8(buf, off)
	if err != nil {
		return nil, fieldErr("password flag", err)
	}
	info.Password = passB != 0
	off++

	secB, err := wire.Uint8(buf, off)
	if err != nil {
		return nil, fieldErr("secure flag", err)
	}
	info.Secure = secB != 0
	off++

	if info.GameVersion, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("game version", err)
	}

	if off < len(buf) {
		if info.ExtraDataFlags, err = wire.Uint8(buf, off); err != nil {
			return nil, fieldErr("extra data flags", err)
		}
	}

	return info, nil
}

func parseGoldSrcInfo(buf []byte) (*ServerInfo, error) {
	off := 5
	info := &ServerInfo{IsGoldSrc: true}

	var err error
	if info.GameIP, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("game ip", err)
	}
	if info.Name, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("name", err)
	}
	if info.Map, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("map", err)
	}
	if info.GameDir, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("game dir", err)
	}
	if info.GameDescription, err = wire.ReadCString(buf, &off); err != nil {
		return nil, fieldErr("game description", err)
	}

	if info.NumPlayers, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("num players", err)
	}
	off++
	if info.MaxPlayers, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("max players", err)
	}
	off++

	if info.Protocol, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("protocol", err)
	}
	off++

	if info.Dedicated, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("dedicated", err)
	}
	off++
	if info.OS, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("os", err)
	}
	off++

	passB, err := wire.Uint8(buf, off)
	if err != nil {
		return nil, fieldErr("password flag", err)
	}
	info.Password = passB != 0
	off++

	modB, err := wire.Uint8(buf, off)
	if err != nil {
		return nil, fieldErr("is mod flag", err)
	}
	info.IsMod = modB != 0
	off++

	if info.IsMod {
		mod := &ModInfo{}
		if mod.InfoURL, err = wire.ReadCString(buf, &off); err != nil {
			return nil, fieldErr("mod info url", err)
		}
		if mod.DownloadURL, err = wire.ReadCString(buf, &off); err != nil {
			return nil, fieldErr("mod download url", err)
		}
		off++ // discarded NUL

		if mod.Version, err = wire.Int32LE(buf, off); err != nil {
			return nil, fieldErr("mod version", err)
		}
		off += 4
		if mod.Size, err = wire.Int32LE(buf, off); err != nil {
			return nil, fieldErr("mod size", err)
		}
		off += 4

		soB, err := wire.Uint8(buf, off)
		if err != nil {
			return nil, fieldErr("mod server-only flag", err)
		}
		mod.ServerOnly = soB != 0
		off++

		cdB, err := wire.Uint8(buf, off)
		if err != nil {
			return nil, fieldErr("mod custom client dll flag", err)
		}
		mod.CustomClientDLL = cdB != 0
		off++

		info.Mod = mod
	}

	secB, err := wire.Uint8(buf, off)
	if err != nil {
		return nil, fieldErr("secure flag", err)
	}
	info.Secure = secB != 0
	off++

	if info.NumBots, err = wire.Uint8(buf, off); err != nil {
		return nil, fieldErr("num bots", err)
	}

	return info, nil
}

func fieldErr(field string, cause error) error {
	return &verr.FormatError{Context: "A2S_INFO " + field, Input: cause.Error()}
}
