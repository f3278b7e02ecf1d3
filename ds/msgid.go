package ds

import (
	"strings"

	"github.com/google/uuid"
)

type idMode int

const (
	idAuto idMode = iota
	idNone
	idExplicit
)

// MsgID selects how the id field of an outbound message is produced. The
// three inputs are distinguishable on purpose: an explicit id, an explicit
// absence of the field, and a freshly generated token. Collapsing them into
// one nullable value would conflate "no id" (a legal message) with "pick one
// for me".
type MsgID struct {
	mode  idMode
	value string
}

// AutoID generates a fresh correlation token at send time. This is the
// default for operations the caller wants replies matched against.
func AutoID() MsgID { return MsgID{mode: idAuto} }

// NoID omits the id field entirely, as for connection_init.
func NoID() MsgID { return MsgID{mode: idNone} }

// ID sets an explicit id.
func ID(s string) MsgID { return MsgID{mode: idExplicit, value: s} }

// resolve returns the id to place on the wire and whether the field is
// present at all.
func (id MsgID) resolve() (string, bool) {
	switch id.mode {
	case idNone:
		return "", false
	case idExplicit:
		return id.value, true
	default:
		return strings.ReplaceAll(uuid.NewString(), "-", ""), true
	}
}
