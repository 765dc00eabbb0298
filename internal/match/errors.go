package match

var (
	ErrMatchEnded         = errf("match has ended")
	ErrNotParticipant     = errf("identity is not a player in this match")
	ErrWrongTurn          = errf("not your turn")
	ErrIllegalMove        = errf("illegal move")
	ErrInvalidMove        = errf("malformed move")
	ErrDrawPending        = errf("a draw offer must be answered first")
	ErrDrawAlreadyPending = errf("a draw offer is already pending")
	ErrDrawLimitReached   = errf("draw offer limit reached")
	ErrDrawCooldown       = errf("draw offer cooldown active")
	ErrNoDrawPending      = errf("no draw offer to answer")
	ErrDrawOwnOffer       = errf("cannot answer your own draw offer")
	ErrUnsupported        = errf("action not available in this mode")
	ErrAbortTooLate       = errf("match can no longer be aborted")
	ErrInvalidTransition  = errf("invalid state transition")
	ErrServer             = errf("server error")
	ErrClosed             = errf("session closed")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
