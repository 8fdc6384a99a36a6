package vm

import "github.com/chazu/minic/pkg/value"

// heap is the ordered collection of array cells. An address is its
// insertion index; addresses increase monotonically for the VM's
// lifetime and are never reused — this core performs no deallocation.
type heap struct {
	cells [][]value.Value
}

func newHeap() *heap {
	return &heap{}
}

// alloc appends a new cell of length n filled with zero, returning its
// address.
func (h *heap) alloc(n int, zero value.Value) int {
	cell := make([]value.Value, n)
	for i := range cell {
		cell[i] = zero
	}
	addr := len(h.cells)
	h.cells = append(h.cells, cell)
	return addr
}

func (h *heap) validAddress(addr int) bool {
	return addr >= 0 && addr < len(h.cells)
}

func (h *heap) length(addr int) int {
	return len(h.cells[addr])
}

func (h *heap) get(addr, index int) value.Value {
	return h.cells[addr][index]
}

func (h *heap) set(addr, index int, v value.Value) {
	h.cells[addr][index] = v
}
