package stm

// Isolation selects the strength of conflict checking applied at
// commit. It is a closed, two-value choice: the validation algorithm
// branches on exactly these cases.
type Isolation int

const (
	// Snapshot validates only the refs the transaction wrote. Refs that
	// were merely read may have changed since the transaction began.
	Snapshot Isolation = iota

	// Serializable additionally requires every ref in the read-set to
	// still hold the version observed at first read.
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case Snapshot:
		return "snapshot"
	case Serializable:
		return "serializable"
	default:
		return "unknown"
	}
}
