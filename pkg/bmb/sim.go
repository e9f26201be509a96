package bmb

import "encoding/binary"

// SimMemory is a simple in-process BMB slave backing a flat byte array,
// used by pkg/mem's tests and by pkg/engine's single-process simulation.
// It models "ready" stalls via a configurable per-command delay so the
// controller's re-drive-until-accepted logic
// has something real to exercise.
type SimMemory struct {
	Bytes []byte

	// StallCycles delays acceptance of every command by this many Fire
	// calls before Fire returns true (0 = always accepted immediately).
	StallCycles int

	pending     *Command
	stallsLeft  int
	resp        *Response
	respPending bool

	// FaultAddr, if nonzero, makes any command touching that address
	// come back with Success=false.
	FaultAddr uint32
	HasFault  bool
}

// NewSimMemory allocates size bytes of zeroed main memory.
func NewSimMemory(size int) *SimMemory {
	return &SimMemory{Bytes: make([]byte, size)}
}

// Fire offers a command; it is accepted once StallCycles calls have
// elapsed for it (address/data are frozen into pending on first offer,
// matching the frozen-until-fire handshake rule).
func (m *SimMemory) Fire(cmd Command) bool {
	if m.pending == nil {
		c := cmd
		m.pending = &c
		m.stallsLeft = m.StallCycles
	}
	if m.stallsLeft > 0 {
		m.stallsLeft--
		return false
	}
	m.execute(*m.pending)
	m.pending = nil
	return true
}

func (m *SimMemory) execute(cmd Command) {
	success := true
	if m.HasFault && cmd.Addr == m.FaultAddr {
		success = false
	}
	var data []byte
	if success {
		switch cmd.Op {
		case Read:
			data = make([]byte, cmd.LenBytes+WordBytes)
			copy(data, m.readRange(cmd.Addr, len(data)))
		case Write:
			m.writeRange(cmd.Addr, cmd.Data, cmd.Mask)
		}
	}
	m.resp = &Response{Data: data, Success: success, Context: cmd.Context, Last: cmd.Last}
	m.respPending = true
}

func (m *SimMemory) readRange(addr uint32, n int) []byte {
	if int(addr)+n > len(m.Bytes) {
		grown := make([]byte, int(addr)+n)
		copy(grown, m.Bytes)
		m.Bytes = grown
	}
	return m.Bytes[addr : int(addr)+n]
}

func (m *SimMemory) writeRange(addr uint32, data, mask []byte) {
	dst := m.readRange(addr, len(data))
	for i, b := range data {
		if mask == nil || (i < len(mask) && mask[i] != 0) {
			dst[i] = b
		}
	}
}

// Response drains the one pending response beat, if any.
func (m *SimMemory) Response() (Response, bool) {
	if !m.respPending {
		return Response{}, false
	}
	r := *m.resp
	m.respPending = false
	return r, true
}

// ReadWordBE reads a big-endian 32-bit word.
func (m *SimMemory) ReadWordBE(addr uint32) uint32 {
	return binary.BigEndian.Uint32(m.readRange(addr, WordBytes))
}

// WriteWordBE writes a big-endian 32-bit word.
func (m *SimMemory) WriteWordBE(addr uint32, v uint32) {
	binary.BigEndian.PutUint32(m.readRange(addr, WordBytes), v)
}

// SwapBEtoLEWord reverses the byte order of a 32-bit word: main memory
// stores words big-endian, JBC RAM is byte-addressed little-endian
//.
func SwapBEtoLEWord(w uint32) uint32 {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], w)
	return binary.LittleEndian.Uint32(buf[:])
}
