package protocol

// ClientCode identifies a client-to-server message.
type ClientCode uint8

// Client → Server message codes (spec.md §6).
const (
	CSetPlayerId ClientCode = iota
	CJoinGame
	CJoinGameSplitScreen
	CLeaveGame
	CChat
	CSetReady
	CSetHouseColour
	CSetMenuSelection
	CFinishedLoading
	CSendControl
	CReadyToEnd
	CSetPauseMode
	CSendPassword
	CSetObsFlag
	CRequestSpeechBubble
	CSetApproachBasedControls
	CSetActionBarControls
	CRandomQuest
)

// ServerCode identifies a server-to-client message.
type ServerCode uint8

// Server → Client message codes (spec.md §6), grouped roughly by the
// subsystem that emits them.
const (
	SServerError ServerCode = iota
	SConnectionAccepted
	SJoinGameAccepted
	SJoinGameDenied
	SPlayerConnected
	SPlayerDisconnected
	SLeaveGame
	SSetMenuSelection
	SSetQuestDescription
	SStartGame
	SStartGameObs
	SGoIntoObsMode
	SGotoMenu
	SPlayerJoinedThisGame
	SPlayerLeftThisGame
	SSetReady
	SSetHouseColour
	SSetAvailableHouseColours
	SSetObsFlag
	SDeactivateReadyFlags
	SChat
	SAnnouncementLoc
	SPopUpWindow
	SUpdateGame
	SDropGame
	SUpdatePlayer
	SPlaySound
	SWinGame
	SLoseGame
	SSetAvailableControls
	SSetMenuHighlight
	SFlashScreen
	SSwitchPlayer
	STimeRemaining
	SReadyToEnd
	SExtendedMessage

	// Dungeon-view sub-protocol (§4.4)
	SDVSetTile
	SDVClearTiles
	SDVSetItem
	SDVAddEntity
	SDVRemoveEntity
	SDVMoveEntity
	SDVFaceEntity
	SDVAnimateEntity
	SDVSpeechBubble

	// Mini-map sub-protocol (§4.4)
	SMMSetColour
	SMMKnightLocation

	// Status-display sub-protocol (§4.4)
	SSDBackpackSlot
	SSDSkulls
	SSDHealth
	SSDPotion
	SSDMagic
	SSDPoisonImmunity
	SSDQuestHint
)

// ExtendedCode identifies an ExtendedMessage sub-code (spec.md §6
// "Extended messages"). Unknown extended codes are skipped by consuming
// exactly the payload-size field's byte count, so new codes can be
// introduced without breaking old clients.
type ExtendedCode uint32

const (
	ExtSetQuestHints ExtendedCode = iota
	ExtNextAnnouncementIsError
	ExtDisableView
)

// GameStatus is the GS_* enum carried by UpdateGame.
type GameStatus uint8

const (
	GSWaitingForPlayers GameStatus = iota
	GSSelectingQuest
	GSRunning
	GSGameOver
)

// PlayerState is the per-player state enum carried by PlayerList entries.
type PlayerState uint8

const (
	PlayerNormal PlayerState = iota
	PlayerEliminated
	PlayerDisconnected
	PlayerObserver
)

// ChatCode classifies a Chat message's audience.
type ChatCode uint8

const (
	ChatLobby ChatCode = iota
	ChatNormal
	ChatObserver
	ChatTeam
)
