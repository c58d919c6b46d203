package abi

// MsgTag is the message tag passed along every IPC.
//
// Layout of the raw word:
//
//	bits 0-5    number of untyped words
//	bits 6-11   number of typed items
//	bits 12-15  flags
//	bits 16-63  label (protocol id, signed)
type MsgTag struct {
	Raw uint64
}

const (
	tagWordsMask  = 0x3f
	tagItemsMask  = 0x3f
	tagItemShift  = 6
	tagFlagsMask  = 0xf000
	tagLabelShift = 16
)

// NewMsgTag encodes a message tag.
func NewMsgTag(label int64, words, items int, flags uint64) MsgTag {
	raw := uint64(label)<<tagLabelShift |
		uint64(words)&tagWordsMask |
		(uint64(items)&tagItemsMask)<<tagItemShift |
		flags&tagFlagsMask
	return MsgTag{Raw: raw}
}

// Label returns the protocol label.
func (t MsgTag) Label() int64 { return int64(t.Raw) >> tagLabelShift }

// Words returns the number of untyped words.
func (t MsgTag) Words() int { return int(t.Raw & tagWordsMask) }

// Items returns the number of typed items.
func (t MsgTag) Items() int { return int((t.Raw >> tagItemShift) & tagItemsMask) }

// Flags returns the tag flags.
func (t MsgTag) Flags() uint64 { return t.Raw & tagFlagsMask }

// MsgRegs is the generic message register block of a UTCB.
type MsgRegs [UTCBMsgRegs]uint64
