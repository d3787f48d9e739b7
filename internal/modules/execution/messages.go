package execution

// message is processed one at a time by the engine goroutine, which owns all
// broker-session state. Every mutation of that state arrives as a message.
type message interface {
	isMessage()
}

// openPositionMsg asks the engine to move a security towards a target
// position, expressed in contracts.
type openPositionMsg struct {
	Portfolio string
	Security  string
	Price     float64
	Position  float64
}

// recheckMsg re-verifies a position against the broker some time after an
// order was submitted.
type recheckMsg struct {
	Portfolio string
	Security  string
}

// snapshotMsg requests a copy of the tracked positions.
type snapshotMsg struct {
	Reply chan []PositionSnapshot
}

func (openPositionMsg) isMessage() {}
func (recheckMsg) isMessage()      {}
func (snapshotMsg) isMessage()     {}
