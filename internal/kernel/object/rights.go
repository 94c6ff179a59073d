package object

// Rights is the per-handle capability mask. A duplicated handle's
// rights are always a subset of its source's.
type Rights uint32

const (
	RightNone        Rights = 0
	RightDuplicate   Rights = 1 << 0
	RightTransfer    Rights = 1 << 1
	RightRead        Rights = 1 << 2
	RightWrite       Rights = 1 << 3
	RightExecute     Rights = 1 << 4
	RightMap         Rights = 1 << 5
	RightGetProperty Rights = 1 << 6
	RightSetProperty Rights = 1 << 7
	RightDebug       Rights = 1 << 8

	// RightSameRights is a request token for duplicate/replace, never
	// stored in a handle.
	RightSameRights Rights = 1 << 31
)

// Has reports whether r includes every right in want.
func (r Rights) Has(want Rights) bool { return r&want == want }
