package services

import "errors"

// Rejected-command outcomes. Handlers map these to HTTP statuses with
// errors.Is; none of them leaves partial state behind.
var (
	ErrCannotPublishEmptySession = errors.New("cannot publish a session with no statements")
	ErrCannotStartSession        = errors.New("session needs at least 2 participants and 1 statement to start")
	ErrRoundAlreadyActive        = errors.New("a round is already active for this statement")
	ErrInvalidRoundSequence      = errors.New("previous round must be completed first")
	ErrStatementLocked           = errors.New("statement is locked")
	ErrSessionTerminal           = errors.New("session has ended")
	ErrInsufficientParticipants  = errors.New("at least 2 participants are required to form groups")
	ErrGroupsAlreadyFormed       = errors.New("groups have already been formed for this round")
	ErrJoinsClosed               = errors.New("session is not accepting new participants")
	ErrLevelOutOfRange           = errors.New("agreement and confidence levels must be between 1 and 10")
	ErrInvalidState              = errors.New("operation not valid in the current state")
	ErrConflict                  = errors.New("conflict")
	ErrNotFound                  = errors.New("not found")
	ErrForbidden                 = errors.New("not authorized for this session")
)
