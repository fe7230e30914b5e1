package protocol

import (
	"github.com/sdthompson1/knights-go/internal/wire"
)

// ClientMessage is the decoded form of one client-to-server message.
// Exactly one of the typed fields is meaningful, selected by Code; this
// mirrors the teacher's flat MsgType-tagged approach
// (internal/protocol/messages.go in the original teacher repo) rather
// than a sum-type/interface hierarchy, since the session's dispatch
// table (internal/session) switches on Code exactly the way the
// teacher's client/server switched on MsgType.
type ClientMessage struct {
	Code ClientCode

	PlayerID       PlayerID
	GameName       string
	ChatText       string
	Ready          bool
	Colour         uint8
	MenuKey        string
	MenuValue      string
	Control        ControlRef
	ControlPressed bool
	Password       string
	ObsFlag        bool
	Paused         bool
	ApproachBased  bool
	ActionBar      bool
}

// DecodeClientMessage reads one client message body given its leading
// code byte. The caller is responsible for reading that code byte first
// (session dispatch needs it to decide validity-in-state before paying
// for a full decode).
func DecodeClientMessage(code ClientCode, r *wire.Reader) (*ClientMessage, error) {
	m := &ClientMessage{Code: code}
	var err error
	switch code {
	case CSetPlayerId:
		if m.PlayerID.Platform, err = r.ReadString(); err != nil {
			return nil, err
		}
		if m.PlayerID.Name, err = r.ReadString(); err != nil {
			return nil, err
		}
	case CJoinGame, CJoinGameSplitScreen:
		if m.GameName, err = r.ReadString(); err != nil {
			return nil, err
		}
	case CLeaveGame:
		// no payload
	case CChat:
		if m.ChatText, err = r.ReadString(); err != nil {
			return nil, err
		}
	case CSetReady:
		b, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		m.Ready = b != 0
	case CSetHouseColour:
		if m.Colour, err = r.ReadUByte(); err != nil {
			return nil, err
		}
	case CSetMenuSelection:
		if m.MenuKey, err = r.ReadString(); err != nil {
			return nil, err
		}
		if m.MenuValue, err = r.ReadString(); err != nil {
			return nil, err
		}
	case CFinishedLoading:
		// no payload
	case CSendControl:
		b, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		m.Control = DecodeControlRef(b)
		if !m.Control.Valid() {
			return nil, NewError(ErrMalformedMessage)
		}
		pressed, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		m.ControlPressed = pressed != 0
	case CReadyToEnd:
		// no payload
	case CSetPauseMode:
		b, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		m.Paused = b != 0
	case CSendPassword:
		if m.Password, err = r.ReadString(); err != nil {
			return nil, err
		}
	case CSetObsFlag:
		b, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		m.ObsFlag = b != 0
	case CRequestSpeechBubble:
		// no payload
	case CSetApproachBasedControls:
		b, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		m.ApproachBased = b != 0
	case CSetActionBarControls:
		b, err := r.ReadUByte()
		if err != nil {
			return nil, err
		}
		m.ActionBar = b != 0
	case CRandomQuest:
		// no payload
	default:
		return nil, NewError(ErrUnknownMessageCode)
	}
	return m, nil
}
