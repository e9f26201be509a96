package mem

import (
	"encoding/binary"

	"github.com/jvmcore/engine/pkg/bmb"
	"github.com/jvmcore/engine/pkg/cache"
)

// handleTableBase is the main-memory word address of the handle table: a
// flat array of real object/array base addresses indexed by handle. All
// object and array dereferences go through it, so a collector can
// relocate an object by rewriting one table entry instead of chasing
// every reference to it.
const handleTableBase = 0

// HandleTableAddr returns the main-memory byte address of handle's entry
// in the handle table, for callers (the allocator driving newarray/new)
// that need to write a fresh entry rather than dereference an existing
// one.
func HandleTableAddr(handle uint32) uint32 {
	return handleTableBase + handle*bmb.WordBytes
}

// Step runs one cycle and returns what the rest of the core sees.
func (c *Controller) Step() Output {
	switch c.state {
	case Idle:
		// Issue drives the first transition; nothing to do on a cycle
		// with no outstanding request.

	case ReadWait:
		c.stepBusWait(busRead, func(v uint32) { c.rdData = v; c.finish() })
	case WriteWait:
		c.stepBusWait(busWrite, func(uint32) { c.finish() })
	case GSRead:
		c.stepBusWait(busRead, func(v uint32) { c.rdData = v; c.finish() })
	case PSWrite:
		c.stepBusWait(busWrite, func(uint32) { c.finish() })

	case BCCacheCheck:
		c.stepBCCacheCheck()
	case BCFillR1:
		c.stepBCFillR1()
	case BCFillLoop:
		c.stepBCFillLoop()

	case HandleRead:
		c.stepHandleRead()
	case HandleWait:
		c.stepHandleWait()
	case HandleBoundRead:
		c.stepHandleBoundRead()
	case HandleBoundWait:
		c.stepHandleBoundWait()
	case HandleCalc:
		c.stepHandleCalc()
	case ACFillCmd:
		c.stepACFillCmd()
	case ACFillWait:
		c.stepACFillWait()
	case HandleAccess:
		c.stepHandleAccess()
	case HandleDataWait:
		c.stepHandleDataWait()
	case PFWait:
		c.stepBusWait(busWrite, func(uint32) { c.finishPutField() })
	case IastWait:
		c.stepBusWait(busWrite, func(uint32) { c.finishIastore() })

	case CPRead:
		c.stepCPRead()
	case CPWrite:
		c.stepCPWrite()
	case Last:
		c.finish()

	case NPExc:
		c.exception = ExcNP
		c.IO.Write(RegExcCode, uint32(c.exception))
		c.finish()
	case ABExc:
		c.exception = ExcAB
		c.IO.Write(RegExcCode, uint32(c.exception))
		c.finish()
	}

	out := Output{
		Busy:      c.state != Idle,
		Done:      c.done,
		RdData:    c.rdData,
		BCBase:    c.bcDstWord,
		Exception: c.exception,
		Snoops:    c.snoopQueue,
	}
	c.snoopQueue = nil
	c.done = false
	return out
}

func (c *Controller) finish() {
	c.state = Idle
	c.done = true
}

// --- plain read/write, getstatic/putstatic ------------------------------

func (c *Controller) beginRead(addr uint32) {
	if IsIORegion(addr) {
		c.rdData = c.IO.Read(uint8(addr))
		c.finish()
		return
	}
	c.pendingAddr = addr
	c.cmdAccepted = false
	if c.req.Kind == ReqGetStatic {
		c.state = GSRead
		return
	}
	c.state = ReadWait
}

func (c *Controller) beginWrite(addr uint32, data uint32) {
	if IsIORegion(addr) {
		c.IO.Write(uint8(addr), data)
		c.finish()
		return
	}
	c.pendingAddr = addr
	c.pendingData = wordBytes(data)
	c.cmdAccepted = false
	if c.req.Kind == ReqPutStatic {
		c.state = PSWrite
		return
	}
	c.state = WriteWait
}

// wordBytes/wordOf match main memory's big-endian word convention. The
// one exception is bytecode streamed into the byte-addressed JBC RAM,
// which goes through an explicit byte-swap (see stepBCFillLoop).
func wordBytes(v uint32) []byte {
	b := make([]byte, bmb.WordBytes)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func wordOf(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(data)
}

// stepBusWait re-drives a plain read/write command until the bus
// accepts it, then waits for the response and invokes onData with the
// decoded word (undefined for writes). Address/data are frozen in
// c.pendingAddr/c.pendingData from the moment the command first latched,
// matching the handshake rule that a command's fields must not change
// between offer and acceptance.
func (c *Controller) stepBusWait(op busOp, onData func(uint32)) {
	if !c.cmdAccepted {
		cmd := bmb.Command{Addr: c.pendingAddr, Op: bmb.Opcode(op), Data: c.pendingData, Last: true}
		if c.Bus.Fire(cmd) {
			c.cmdAccepted = true
		}
		return
	}
	resp, ok := c.Bus.Response()
	if !ok {
		return
	}
	c.cmdAccepted = false
	if !resp.Success {
		c.exception = ExcAB
		c.finish()
		return
	}
	onData(wordOf(resp.Data))
}

// --- method cache fill ---------------------------------------------------

func (c *Controller) beginBCFill(r Request) {
	c.state = BCCacheCheck
}

func (c *Controller) stepBCCacheCheck() {
	l := c.Method.Find(c.req.MethodAddr, c.req.MethodLen)
	c.bcDstWord = l.Base
	if l.Hit {
		c.finish()
		return
	}
	c.bcWordsLeft = (c.req.MethodLen + bmb.WordBytes - 1) / bmb.WordBytes
	c.cmdAccepted = false
	c.state = BCFillR1
}

func (c *Controller) stepBCFillR1() {
	n := c.bcWordsLeft * bmb.WordBytes
	cmd := bmb.Command{Addr: c.req.MethodAddr, Op: bmb.Opcode(busRead), LenBytes: n - bmb.WordBytes, Last: true}
	if c.Bus.Fire(cmd) {
		c.cmdAccepted = true
		c.state = BCFillLoop
	}
}

func (c *Controller) stepBCFillLoop() {
	resp, ok := c.Bus.Response()
	if !ok {
		return
	}
	c.cmdAccepted = false
	if !resp.Success {
		c.exception = ExcAB
		c.finish()
		return
	}
	for i := 0; i+4 <= len(resp.Data); i += 4 {
		be := binary.BigEndian.Uint32(resp.Data[i : i+4])
		c.JBC.WriteWord(c.bcDstWord+uint32(i/4), bmb.SwapBEtoLEWord(be))
	}
	c.finish()
}

// --- field/array dereference ---------------------------------------------

// indexSignBit is an array index's MSB: a negative index (as a signed
// offset) has it set. Checked before any bus transaction fires, rather
// than left to fall out of the unsigned >= lenReg compare after the
// handle-table and length reads have already gone out over the bus.
const indexSignBit = uint32(1) << 31

func (c *Controller) beginHandleDeref() {
	if c.handleReg == 0 {
		c.state = NPExc
		return
	}
	switch c.req.Kind {
	case ReqIaload, ReqIastore:
		if c.indexReg&indexSignBit != 0 {
			c.state = ABExc
			return
		}
	}
	c.cmdAccepted = false
	c.state = HandleRead
}

func (c *Controller) beginGetField(r Request) {
	if v, hit := c.Object.Lookup(r.Handle, r.Field); hit {
		c.rdData = v
		c.finish()
		return
	}
	c.beginHandleDeref()
}

func (c *Controller) beginPutField(r Request) {
	if c.Object.WriteThrough(r.Handle, r.Field, r.Data) {
		c.queueFieldSnoop(r.Handle, r.Field)
		c.finish()
		return
	}
	c.beginHandleDeref()
}

func (c *Controller) beginIaload(r Request) {
	if v, hit := c.Array.Lookup(r.Handle, r.Index); hit {
		c.rdData = v
		c.finish()
		return
	}
	c.beginHandleDeref()
}

func (c *Controller) beginIastore(r Request) {
	if c.Array.WriteThrough(r.Handle, r.Index, r.Data) {
		c.queueElementSnoop(r.Handle, r.Index)
		c.finish()
		return
	}
	c.beginHandleDeref()
}

func (c *Controller) stepHandleRead() {
	cmd := bmb.Command{Addr: handleTableBase + c.handleReg*bmb.WordBytes, Op: bmb.Opcode(busRead), Last: true}
	if c.Bus.Fire(cmd) {
		c.cmdAccepted = true
		c.state = HandleWait
	}
}

func (c *Controller) stepHandleWait() {
	resp, ok := c.Bus.Response()
	if !ok {
		return
	}
	c.cmdAccepted = false
	if !resp.Success {
		c.exception = ExcAB
		c.finish()
		return
	}
	c.addrReg = wordOf(resp.Data)

	switch c.req.Kind {
	case ReqIaload, ReqIastore, ReqNewArray:
		if c.StrictBounds {
			c.cmdAccepted = false
			c.state = HandleBoundRead
			return
		}
	case ReqArrayLength:
		c.cmdAccepted = false
		c.state = HandleBoundRead
		return
	}
	c.state = HandleCalc
}

func (c *Controller) stepHandleBoundRead() {
	cmd := bmb.Command{Addr: c.addrReg, Op: bmb.Opcode(busRead), Last: true}
	if c.Bus.Fire(cmd) {
		c.cmdAccepted = true
		c.state = HandleBoundWait
	}
}

func (c *Controller) stepHandleBoundWait() {
	resp, ok := c.Bus.Response()
	if !ok {
		return
	}
	c.cmdAccepted = false
	if !resp.Success {
		c.exception = ExcAB
		c.finish()
		return
	}
	c.lenReg = wordOf(resp.Data)
	if c.req.Kind == ReqArrayLength {
		c.rdData = c.lenReg
		c.finish()
		return
	}
	if c.indexReg >= c.lenReg {
		c.state = ABExc
		return
	}
	c.state = HandleCalc
}

func (c *Controller) stepHandleCalc() {
	switch c.req.Kind {
	case ReqGetField, ReqPutField:
		c.addrReg += uint32(c.req.Field) * bmb.WordBytes
	case ReqIaload, ReqIastore, ReqNewArray:
		c.addrReg += bmb.WordBytes + c.indexReg*bmb.WordBytes
	}

	if c.req.Kind == ReqIaload {
		c.cmdAccepted = false
		c.state = ACFillCmd
		return
	}
	c.cmdAccepted = false
	c.state = HandleAccess
}

// stepACFillCmd fires a burst read covering the whole array-cache line
// the requested element falls in (the 4 elements sharing its upper
// index bits), not just the one element asked for. The line's address
// is derived from the element's own slot within it rather than from an
// absolute alignment of addrReg, since the array's data follows a
// one-word length header and so is not itself 16-byte aligned.
func (c *Controller) stepACFillCmd() {
	slot := c.indexReg % cache.ElementsPerLine
	lineBase := c.addrReg - slot*bmb.WordBytes
	lineBytes := cache.ElementsPerLine * bmb.WordBytes
	cmd := bmb.Command{Addr: lineBase, Op: bmb.Opcode(busRead), LenBytes: lineBytes - bmb.WordBytes, Last: true}
	if c.Bus.Fire(cmd) {
		c.cmdAccepted = true
		c.state = ACFillWait
	}
}

func (c *Controller) stepACFillWait() {
	resp, ok := c.Bus.Response()
	if !ok {
		return
	}
	c.cmdAccepted = false
	if !resp.Success {
		c.exception = ExcAB
		c.finish()
		return
	}
	idx := c.Array.BeginFill(c.handleReg, c.indexReg)
	for i := 0; i+4 <= len(resp.Data); i += 4 {
		c.Array.StoreFillWord(idx, i/4, binary.BigEndian.Uint32(resp.Data[i:i+4]))
	}
	c.Array.CommitFill(idx)
	c.rdData, _ = c.Array.Lookup(c.handleReg, c.indexReg)
	c.finish()
}

func (c *Controller) stepHandleAccess() {
	switch c.req.Kind {
	case ReqGetField:
		cmd := bmb.Command{Addr: c.addrReg, Op: bmb.Opcode(busRead), Last: true}
		if c.Bus.Fire(cmd) {
			c.cmdAccepted = true
			c.state = HandleDataWait
		}
	case ReqPutField:
		cmd := bmb.Command{Addr: c.addrReg, Op: bmb.Opcode(busWrite), Data: wordBytes(c.req.Data), Last: true}
		if c.Bus.Fire(cmd) {
			c.cmdAccepted = true
			c.state = PFWait
		}
	case ReqIastore, ReqNewArray:
		cmd := bmb.Command{Addr: c.addrReg, Op: bmb.Opcode(busWrite), Data: wordBytes(c.req.Data), Last: true}
		if c.Bus.Fire(cmd) {
			c.cmdAccepted = true
			c.state = IastWait
		}
	}
}

func (c *Controller) stepHandleDataWait() {
	resp, ok := c.Bus.Response()
	if !ok {
		return
	}
	c.cmdAccepted = false
	if !resp.Success {
		c.exception = ExcAB
		c.finish()
		return
	}
	v := wordOf(resp.Data)
	c.rdData = v
	if c.req.Kind == ReqGetField {
		c.Object.Fill(c.handleReg, c.req.Field, v)
	}
	c.finish()
}

func (c *Controller) finishPutField() {
	c.Object.Fill(c.handleReg, c.req.Field, c.req.Data)
	c.queueFieldSnoop(c.handleReg, c.req.Field)
	c.finish()
}

func (c *Controller) finishIastore() {
	c.queueElementSnoop(c.handleReg, c.indexReg)
	c.finish()
}

// queueFieldSnoop and queueElementSnoop only queue the broadcast for
// remote cores: the writer's own cache entry was just re-asserted valid
// by WriteThrough/Fill, and snooping it here would immediately undo
// that, forcing every putfield/iastore-then-read to miss on its own
// write.
func (c *Controller) queueFieldSnoop(handle uint32, field int) {
	c.snoopQueue = append(c.snoopQueue, Snoop{Handle: handle, Index: uint32(field), IsField: true})
}

func (c *Controller) queueElementSnoop(handle, index uint32) {
	c.snoopQueue = append(c.snoopQueue, Snoop{Handle: handle, Index: index, IsField: false})
}

// --- GC block copy ---------------------------------------------------------

func (c *Controller) beginCopy(r Request) {
	c.gcSrc, c.gcDst, c.gcCount = r.Src, r.Dst, r.Count
	if c.gcCount == 0 {
		c.finish()
		return
	}
	c.cmdAccepted = false
	c.state = CPRead
}

func (c *Controller) stepCPRead() {
	if !c.cmdAccepted {
		cmd := bmb.Command{Addr: c.gcSrc, Op: bmb.Opcode(busRead), Last: true}
		if c.Bus.Fire(cmd) {
			c.cmdAccepted = true
		}
		return
	}
	resp, ok := c.Bus.Response()
	if !ok {
		return
	}
	c.cmdAccepted = false
	if !resp.Success {
		c.exception = ExcAB
		c.finish()
		return
	}
	c.pendingData = append(c.pendingData[:0], resp.Data...)
	c.state = CPWrite
}

func (c *Controller) stepCPWrite() {
	if !c.cmdAccepted {
		cmd := bmb.Command{Addr: c.gcDst, Op: bmb.Opcode(busWrite), Data: c.pendingData, Last: true}
		if c.Bus.Fire(cmd) {
			c.cmdAccepted = true
		}
		return
	}
	resp, ok := c.Bus.Response()
	if !ok {
		return
	}
	c.cmdAccepted = false
	if !resp.Success {
		c.exception = ExcAB
		c.finish()
		return
	}
	c.gcSrc += bmb.WordBytes
	c.gcDst += bmb.WordBytes
	c.gcCount--
	if c.gcCount == 0 {
		c.state = Last
		return
	}
	c.state = CPRead
}
