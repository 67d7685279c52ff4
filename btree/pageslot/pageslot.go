// Package pageslot is the positional variable-length slot directory the
// B+-tree's leaf and branch nodes use to keep their pairs stored in
// sorted key order. It is deliberately not the shared slotted-page codec
// (package slotted): that codec hands out stable, tombstone-reusable
// slot ids, while a B+-tree node needs insert-at-index/remove-at-index
// semantics so that slot position doubles as sort position for binary
// search and splitting. Same idea as slotted, different contract.
package pageslot

import "encoding/binary"

// HeaderSize is the 4-byte directory header: slot count, free space
// offset, both little-endian uint16.
const HeaderSize = 4

// PointerSize is the size of one directory entry: offset, length, both
// little-endian uint16.
const PointerSize = 4

// Directory is a view onto a page-sized body buffer (the bytes after a
// node's own fixed header), organized as [pointer array][free
// space][data records stored backwards from the end].
type Directory struct {
	body []byte
}

// New wraps body as a slot directory view.
func New(body []byte) *Directory {
	return &Directory{body: body}
}

func (d *Directory) numSlots() uint16     { return binary.LittleEndian.Uint16(d.body[0:2]) }
func (d *Directory) setNumSlots(v uint16) { binary.LittleEndian.PutUint16(d.body[0:2], v) }

func (d *Directory) freeSpaceOffset() uint16     { return binary.LittleEndian.Uint16(d.body[2:4]) }
func (d *Directory) setFreeSpaceOffset(v uint16) { binary.LittleEndian.PutUint16(d.body[2:4], v) }

func (d *Directory) pointerEntry(i int) int { return HeaderSize + i*PointerSize }

func (d *Directory) pointerOffset(i int) uint16 {
	o := d.pointerEntry(i)
	return binary.LittleEndian.Uint16(d.body[o : o+2])
}

func (d *Directory) setPointerOffset(i int, v uint16) {
	o := d.pointerEntry(i)
	binary.LittleEndian.PutUint16(d.body[o:o+2], v)
}

func (d *Directory) pointerLen(i int) uint16 {
	o := d.pointerEntry(i)
	return binary.LittleEndian.Uint16(d.body[o+2 : o+4])
}

func (d *Directory) setPointerLen(i int, v uint16) {
	o := d.pointerEntry(i)
	binary.LittleEndian.PutUint16(d.body[o+2:o+4], v)
}

// Init resets the directory to empty with the full body available as
// free space.
func (d *Directory) Init() {
	d.setNumSlots(0)
	d.setFreeSpaceOffset(uint16(len(d.body)))
}

// NumSlots returns the current number of stored records.
func (d *Directory) NumSlots() int {
	return int(d.numSlots())
}

// Capacity returns the total body size in bytes.
func (d *Directory) Capacity() int {
	return len(d.body)
}

// FreeSpace returns the gap between the end of the pointer array and the
// start of the record heap.
func (d *Directory) FreeSpace() int {
	return int(d.freeSpaceOffset()) - HeaderSize - d.pointersSize()
}

func (d *Directory) pointersSize() int {
	return PointerSize * d.NumSlots()
}

// Data returns the bytes stored at position index, or nil if out of
// range. The returned slice aliases the body and is valid only until the
// next mutation.
func (d *Directory) Data(index int) []byte {
	if index < 0 || index >= d.NumSlots() {
		return nil
	}
	start := int(d.pointerOffset(index))
	end := start + int(d.pointerLen(index))
	if end > len(d.body) {
		return nil
	}
	return d.body[start:end]
}

// Insert reserves space for a dataLen-byte record at position index,
// shifting every entry at or after index one slot to the right. It
// returns false if there is insufficient free space; the caller must
// then compact or reject the insert (the B+-tree never compacts in
// place here — it splits instead, matching the teacher's original
// design).
func (d *Directory) Insert(index int, dataLen int) bool {
	if d.FreeSpace() < PointerSize+dataLen {
		return false
	}

	n := d.NumSlots()
	newOffset := d.freeSpaceOffset() - uint16(dataLen)
	d.setFreeSpaceOffset(newOffset)
	d.setNumSlots(uint16(n + 1))

	for i := n; i > index; i-- {
		d.setPointerOffset(i, d.pointerOffset(i-1))
		d.setPointerLen(i, d.pointerLen(i-1))
	}
	d.setPointerOffset(index, newOffset)
	d.setPointerLen(index, uint16(dataLen))
	return true
}

// Remove deletes the record at position index, shifting every later
// entry left by one and moving the records stored below it up so its
// bytes return to free space. Unlike slotted.Page, positions are not
// stable identifiers: removing index 0 renumbers every remaining record.
func (d *Directory) Remove(index int) {
	n := d.NumSlots()
	off := d.pointerOffset(index)
	l := d.pointerLen(index)
	fso := d.freeSpaceOffset()
	copy(d.body[fso+l:off+l], d.body[fso:off])
	for i := 0; i < n; i++ {
		if i != index && d.pointerOffset(i) < off {
			d.setPointerOffset(i, d.pointerOffset(i)+l)
		}
	}
	d.setFreeSpaceOffset(fso + l)
	for i := index; i < n-1; i++ {
		d.setPointerOffset(i, d.pointerOffset(i+1))
		d.setPointerLen(i, d.pointerLen(i+1))
	}
	d.setNumSlots(uint16(n - 1))
}
