package session

import "github.com/sdthompson1/knights-go/internal/protocol"

// Route dispatches one decoded in-game client message to the matching
// KnightsGame method (spec.md §4.3 "Routing": join-game/leave-game,
// chat, menu/ready/house/obs/finished-loading/ready-to-end/speech-bubble/
// control/pause/random-quest are forwarded into the session identified
// by the connection's current GameConnection"). join-game/leave-game
// themselves are handled by internal/gameserver, which owns the
// connection->session association.
func Route(g *KnightsGame, connID uint64, msg *protocol.ClientMessage) error {
	switch msg.Code {
	case protocol.CChat:
		g.Chat(connID, msg.ChatText)
	case protocol.CSetReady:
		g.SetReady(connID, msg.Ready)
	case protocol.CSetHouseColour:
		g.SetHouseColour(connID, msg.Colour)
	case protocol.CSetObsFlag:
		g.SetObsFlag(connID, msg.ObsFlag)
	case protocol.CSetMenuSelection:
		return g.SetMenuSelection(connID, msg.MenuKey, msg.MenuValue)
	case protocol.CRandomQuest:
		return g.RandomQuest(connID)
	case protocol.CFinishedLoading:
		g.FinishedLoading(connID)
	case protocol.CSendControl:
		g.SendControl(connID, msg.Control, msg.ControlPressed)
	case protocol.CReadyToEnd:
		g.ReadyToEnd(connID)
	case protocol.CSetPauseMode:
		g.SetPauseMode(connID, msg.Paused)
	case protocol.CRequestSpeechBubble:
		g.RequestSpeechBubble(connID)
	case protocol.CSetApproachBasedControls:
		g.SetApproachBasedControls(connID, msg.ApproachBased)
	case protocol.CSetActionBarControls:
		g.SetActionBarControls(connID, msg.ActionBar)
	default:
		return protocol.NewError(protocol.ErrUnknownMessageCode)
	}
	return nil
}
