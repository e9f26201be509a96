// Package mul implements the 17-cycle Booth radix-4 signed multiplier
// as a small countdown counter and a done flag, with no blocking call
// anywhere in the rest of the engine. Start captures operands and arms
// the counter, Tick advances it once per engine cycle, and Done/Read
// let microcode poll and retrieve the result exactly as stmul/ldmul do.
package mul

// Latency is the fixed 17-cycle latency from a wr pulse to a valid
// result.
const Latency = 17

// Multiplier holds the one piece of pipelined state with latency > 1
// visible to microcode.
type Multiplier struct {
	busy    bool
	cycles  int
	a, b    int32
	result  uint32
}

// Start captures A and B and begins the 17-cycle countdown (microcode
// `stmul`). Starting a new multiply while one is in flight restarts the
// countdown against the new operands — hardware has a single result
// register, so microcode is responsible for not issuing stmul before the
// prior ldmul, spacing the two 17 cycles apart.
func (m *Multiplier) Start(a, b int32) {
	m.a, m.b = a, b
	m.cycles = Latency
	m.busy = true
}

// Tick advances the countdown by one engine cycle. Call this exactly
// once per cycle regardless of whether a multiply is in flight.
func (m *Multiplier) Tick() {
	if !m.busy {
		return
	}
	m.cycles--
	if m.cycles <= 0 {
		m.result = uint32(m.a * m.b)
		m.busy = false
	}
}

// Done reports whether the most recently started multiply has a valid,
// registered result.
func (m *Multiplier) Done() bool {
	return !m.busy
}

// Read returns the registered result (microcode `ldmul`). Reading before
// Done returns the stale previous result, mirroring a hardware register
// that simply holds its last written value.
func (m *Multiplier) Read() uint32 {
	return m.result
}
