// Package slotted implements the on-page codec for variable-length
// records: a fixed header, a downward-growing slot directory, and an
// upward-growing record heap, with tombstone reuse and in-place
// compaction. It operates directly on a page-sized byte buffer handed
// in by the caller (normally buffer.Page.Bytes()) and keeps no state of
// its own beyond that buffer.
package slotted

import (
	"encoding/binary"
	"errors"
	"sort"
)

// HeaderSize is the fixed 8-byte header: slotCount, freeListHead,
// freePtr, attrLength, each a little-endian int16.
const HeaderSize = 8

// SlotSize is the size of one slot directory entry: offset, length,
// each a little-endian int16.
const SlotSize = 4

// noTombstone is the freeListHead/chain-link sentinel for "no next".
const noTombstone = int16(-1)

var (
	// ErrNoSpace is returned by Insert when even post-compaction free
	// space cannot fit the new record.
	ErrNoSpace = errors.New("slotted: no space")
	// ErrInvalidSlot is returned by Get/Delete for an out-of-range slot
	// id or one that is currently tombstoned.
	ErrInvalidSlot = errors.New("slotted: invalid slot")
	// ErrEmpty is returned by Scan once the page has no more live
	// records at or after the cursor.
	ErrEmpty = errors.New("slotted: empty")
	// ErrZeroLength is returned by Insert for a non-positive length
	// record; a live record's length must be strictly positive so it
	// can be distinguished from a tombstone.
	ErrZeroLength = errors.New("slotted: record length must be positive")
)

// Page is a view onto a page-sized buffer, interpreting it as a slotted
// page. It holds no bytes itself; every accessor reads or writes
// through buf.
type Page struct {
	buf []byte
}

// New wraps buf as a slotted page view. buf must already have been
// initialized by Init (or be the live contents of a previously
// initialized page).
func New(buf []byte) *Page {
	return &Page{buf: buf}
}

func (p *Page) pageSize() int16 { return int16(len(p.buf)) }

func (p *Page) slotCount() int16     { return int16(binary.LittleEndian.Uint16(p.buf[0:2])) }
func (p *Page) setSlotCount(v int16) { binary.LittleEndian.PutUint16(p.buf[0:2], uint16(v)) }

func (p *Page) freeListHead() int16     { return int16(binary.LittleEndian.Uint16(p.buf[2:4])) }
func (p *Page) setFreeListHead(v int16) { binary.LittleEndian.PutUint16(p.buf[2:4], uint16(v)) }

func (p *Page) freePtr() int16     { return int16(binary.LittleEndian.Uint16(p.buf[4:6])) }
func (p *Page) setFreePtr(v int16) { binary.LittleEndian.PutUint16(p.buf[4:6], uint16(v)) }

func (p *Page) attrLength() int16     { return int16(binary.LittleEndian.Uint16(p.buf[6:8])) }
func (p *Page) setAttrLength(v int16) { binary.LittleEndian.PutUint16(p.buf[6:8], uint16(v)) }

// AttrLength returns the advisory fixed-attribute length recorded by
// Init, unused by the codec itself.
func (p *Page) AttrLength() int16 { return p.attrLength() }

func (p *Page) slotEntryOffset(id int16) int { return HeaderSize + int(id)*SlotSize }

func (p *Page) slotOffset(id int16) int16 {
	o := p.slotEntryOffset(id)
	return int16(binary.LittleEndian.Uint16(p.buf[o : o+2]))
}

func (p *Page) setSlotOffset(id int16, v int16) {
	o := p.slotEntryOffset(id)
	binary.LittleEndian.PutUint16(p.buf[o:o+2], uint16(v))
}

func (p *Page) slotLength(id int16) int16 {
	o := p.slotEntryOffset(id)
	return int16(binary.LittleEndian.Uint16(p.buf[o+2 : o+4]))
}

func (p *Page) setSlotLength(id int16, v int16) {
	o := p.slotEntryOffset(id)
	binary.LittleEndian.PutUint16(p.buf[o+2:o+4], uint16(v))
}

// Init zeroes the page and sets up an empty slot directory and full
// free record heap. attrLength is advisory and carried unchanged.
func (p *Page) Init(attrLength int16) {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.setSlotCount(0)
	p.setFreeListHead(noTombstone)
	p.setFreePtr(p.pageSize())
	p.setAttrLength(attrLength)
}

// FreeSpace is the gap between the end of the slot directory and the
// top of the record heap.
func (p *Page) FreeSpace() int {
	return int(p.freePtr()) - (HeaderSize + int(p.slotCount())*SlotSize)
}

// UsedBytes sums the payload length of every live (non-tombstoned)
// record on the page.
func (p *Page) UsedBytes() int {
	total := 0
	for id := int16(0); id < p.slotCount(); id++ {
		if l := p.slotLength(id); l > 0 {
			total += int(l)
		}
	}
	return total
}

// NumSlots returns the number of slot directory entries ever allocated
// on this page, including tombstoned ones.
func (p *Page) NumSlots() int {
	return int(p.slotCount())
}

// Insert reserves a slot for data, reusing the tombstone chain head
// when one exists, else appending a new directory entry. It compacts in
// place before failing if free space looked insufficient but a compact
// pass would recover enough.
func (p *Page) Insert(data []byte) (int16, error) {
	length := int16(len(data))
	if length <= 0 {
		return -1, ErrZeroLength
	}

	reuse := p.freeListHead() != noTombstone
	if !p.fits(reuse, length) {
		p.compact()
		if !p.fits(reuse, length) {
			return -1, ErrNoSpace
		}
	}

	var slotID int16
	if p.freeListHead() != noTombstone {
		slotID = p.freeListHead()
		p.setFreeListHead(p.slotOffset(slotID))
	} else {
		slotID = p.slotCount()
		p.setSlotCount(slotID + 1)
	}

	newFreePtr := p.freePtr() - length
	copy(p.buf[newFreePtr:int(newFreePtr)+int(length)], data)
	p.setSlotOffset(slotID, newFreePtr)
	p.setSlotLength(slotID, length)
	p.setFreePtr(newFreePtr)
	return slotID, nil
}

// fits reports whether the current free space can satisfy an insert of
// length bytes, given whether that insert reuses an existing tombstone
// (no new directory entry) or appends one.
func (p *Page) fits(reuseTombstone bool, length int16) bool {
	need := int(length)
	if !reuseTombstone {
		need += SlotSize
	}
	return p.FreeSpace() >= need
}

type liveSlot struct {
	id     int16
	offset int16
	length int16
}

// compact collects every live record, repacks them to the high end of
// the page in descending-offset order (a stable sort, so ties preserve
// their prior relative placement), and recomputes freePtr. Slot ids and
// tombstone chain links are untouched; only live slots' offsets move.
func (p *Page) compact() {
	var live []liveSlot
	for id := int16(0); id < p.slotCount(); id++ {
		if l := p.slotLength(id); l > 0 {
			live = append(live, liveSlot{id: id, offset: p.slotOffset(id), length: l})
		}
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].offset > live[j].offset })

	newFreePtr := p.pageSize()
	for _, s := range live {
		newFreePtr -= s.length
		copy(p.buf[newFreePtr:int(newFreePtr)+int(s.length)], p.buf[s.offset:int(s.offset)+int(s.length)])
		p.setSlotOffset(s.id, newFreePtr)
	}
	p.setFreePtr(newFreePtr)
}

// Delete tombstones slotID: its length is set negative and it is
// spliced onto the head of the free-slot chain via its offset field.
func (p *Page) Delete(slotID int16) error {
	if slotID < 0 || slotID >= p.slotCount() {
		return ErrInvalidSlot
	}
	if p.slotLength(slotID) <= 0 {
		return ErrInvalidSlot
	}
	p.setSlotLength(slotID, -1)
	p.setSlotOffset(slotID, p.freeListHead())
	p.setFreeListHead(slotID)
	return nil
}

// Get returns the record stored at slotID. The returned slice aliases
// the page buffer and is only valid until the next mutation.
func (p *Page) Get(slotID int16) ([]byte, error) {
	if slotID < 0 || slotID >= p.slotCount() {
		return nil, ErrInvalidSlot
	}
	length := p.slotLength(slotID)
	if length <= 0 {
		return nil, ErrInvalidSlot
	}
	offset := p.slotOffset(slotID)
	return p.buf[offset : int(offset)+int(length)], nil
}

// Scan walks live records in ascending slot id order starting just
// after *cursor, returning the next one and advancing *cursor to its
// id. Pass a cursor initialized to -1 to start from the beginning.
// ErrEmpty marks exhaustion; the cursor is left unchanged in that case.
func (p *Page) Scan(cursor *int16) (int16, []byte, error) {
	for id := *cursor + 1; id < p.slotCount(); id++ {
		if p.slotLength(id) > 0 {
			*cursor = id
			data, err := p.Get(id)
			return id, data, err
		}
	}
	return -1, nil, ErrEmpty
}
