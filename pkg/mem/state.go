// Package mem implements the memory controller: the state machine that
// dereferences object/array handles with hardware bounds and null
// checks, fills the method cache from main memory, services field/array
// cache misses and write-throughs, performs GC-copy block moves, and
// routes I/O-region accesses — all over one BMB master per core.
//
// Step matches on the current state and runs that state's method, which
// updates the Controller in place (next state, issued bus command, side
// effects) the same way a synchronous register's next-state logic
// would, rather than as a chain of goroutines.
package mem

import (
	"github.com/jvmcore/engine/pkg/bmb"
	"github.com/jvmcore/engine/pkg/cache"
)

// State names every state the controller's state machine can occupy.
type State int

const (
	Idle State = iota
	ReadWait
	WriteWait
	BCCacheCheck
	BCFillR1
	BCFillLoop
	HandleRead
	HandleWait
	HandleBoundRead
	HandleBoundWait
	HandleCalc
	ACFillCmd
	ACFillWait
	HandleAccess
	HandleDataWait
	CPRead
	CPWrite
	GSRead
	PSWrite
	Last
	NPExc
	ABExc
	PFWait
	IastWait
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case ReadWait:
		return "READ_WAIT"
	case WriteWait:
		return "WRITE_WAIT"
	case BCCacheCheck:
		return "BC_CACHE_CHECK"
	case BCFillR1:
		return "BC_FILL_R1"
	case BCFillLoop:
		return "BC_FILL_LOOP"
	case HandleRead:
		return "HANDLE_READ"
	case HandleWait:
		return "HANDLE_WAIT"
	case HandleBoundRead:
		return "HANDLE_BOUND_READ"
	case HandleBoundWait:
		return "HANDLE_BOUND_WAIT"
	case HandleCalc:
		return "HANDLE_CALC"
	case ACFillCmd:
		return "AC_FILL_CMD"
	case ACFillWait:
		return "AC_FILL_WAIT"
	case HandleAccess:
		return "HANDLE_ACCESS"
	case HandleDataWait:
		return "HANDLE_DATA_WAIT"
	case CPRead:
		return "CP_READ"
	case CPWrite:
		return "CP_WRITE"
	case GSRead:
		return "GS_READ"
	case PSWrite:
		return "PS_WRITE"
	case Last:
		return "LAST"
	case NPExc:
		return "NP_EXC"
	case ABExc:
		return "AB_EXC"
	case PFWait:
		return "PF_WAIT"
	case IastWait:
		return "IAST_WAIT"
	default:
		return "?"
	}
}

// JBCWriter is the explicit command surface into the bytecode fetch
// unit's JBC RAM — a message surface the controller calls through,
// never a shared pointer into fetch.Unit's internals.
type JBCWriter interface {
	WriteWord(wordAddr uint32, word uint32)
}

// Controller is the memory controller. Zero value is IDLE with no
// pending command, ready to accept a Request.
type Controller struct {
	Method *cache.MethodCache
	Object *cache.ObjectCache
	Array  *cache.ArrayCache
	JBC    JBCWriter
	IO     IOPort
	Bus    bmb.Master

	// StrictBounds enables array-bounds checking by default: the
	// gating the hardware offers is a stopgap for a collector that
	// cannot yet keep length words consistent during a copy, not an
	// intended permanent mode, so the correct default is on (see
	// DESIGN.md).
	StrictBounds bool

	// TranslateOnEveryAccess selects between GC-copy address
	// translation only during a block move (false) and on every access
	// (true). No state of the controller reads it: neither setting
	// changes behaviour, and no address translation is applied in
	// either mode.
	TranslateOnEveryAccess bool

	state State
	req   Request

	pendingAddr uint32
	pendingData []byte
	cmdAccepted bool

	handleReg uint32
	indexReg  uint32
	addrReg   uint32
	lenReg    uint32

	bcWordsLeft int
	bcDstWord   uint32

	gcSrc, gcDst, gcCount uint32

	snoopQueue []Snoop
	exception  ExcCode
	rdData     uint32
	done       bool
}

type busOp int

const (
	busRead busOp = iota
	busWrite
)

// NewController wires a Controller against the given BMB master, JBC
// write port, I/O port and caches, with StrictBounds enabled.
func NewController(bus bmb.Master, jbc JBCWriter, io IOPort, method *cache.MethodCache, object *cache.ObjectCache, array *cache.ArrayCache) *Controller {
	return &Controller{
		Bus:          bus,
		JBC:          jbc,
		IO:           io,
		Method:       method,
		Object:       object,
		Array:        array,
		StrictBounds: true,
	}
}

// State reports the controller's current state, for tests and tracing.
func (c *Controller) State() State { return c.state }

// Busy reports whether the pipeline should stall waiting on this cycle's
// memory operation.
func (c *Controller) Busy() bool { return c.state != Idle }
