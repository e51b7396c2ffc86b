package ike

import (
	"net"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/msgboxio/ikev2/state"
)

// Role is the side we took when the SA was created.
type Role int

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// InvalidMsgId is the sentinel for a Message-ID counter not yet in use.
const InvalidMsgId = ^uint32(0)

// FirstMsgId is the Message ID of the initial exchange.
const FirstMsgId = uint32(0)

// Suite is the negotiated cryptographic transform set of an IKE SA,
// consumed through this interface only. aad covers the IKE header and
// the SK/SKF header up to the ciphertext.
type Suite interface {
	// Overhead is the bytes EncryptMac adds around a plaintext
	Overhead(clearLen int) int
	VerifyDecrypt(aad, ciphertext []byte, forInitiator bool) ([]byte, error)
	EncryptMac(headers, payload []byte, forInitiator bool) ([]byte, error)
}

// pendingRequest is an outbound request waiting for window space.
type pendingRequest struct {
	// child that wants to send, 0 for the IKE SA itself
	saSerial uint64
	send     func()
}

// Sa is one security association. An IKE SA has ClonedFrom == 0; a
// Child SA carries its parent's serial there and reaches it through the
// SA table (no direct pointer, so there is no cycle to break).
type Sa struct {
	Serial     uint64
	SpiI, SpiR protocol.Spi
	Role       Role
	State      state.State

	// Message-ID counters, all on the IKE SA (the window belongs to the
	// control channel, not to children).
	// initiator direction: LastAck is the highest request of ours that
	// was answered, NextUse the next id we will mint.
	// responder direction: LastRecv is the highest request we accepted,
	// LastReplied the highest we answered.
	LastAck     uint32
	NextUse     uint32
	LastRecv    uint32
	LastReplied uint32

	// nil until SKEYSEED has been derived
	Suite Suite

	// Child SA only
	ClonedFrom uint64
	MsgId      uint32 // Message ID of the creating exchange
	TsI, TsR   []*protocol.Selector
	IpcompCpi  uint16
	// staged SPI pair of an IKE rekey, swapped in at emancipation
	RekeySpiI, RekeySpiR protocol.Spi

	// connection/policy handle
	Conn *ConnectionPolicy

	Local, Remote net.Addr

	// pending reassembly, exclusively owned by this SA
	frags *reassembly

	// last transmitted message, retained for retransmission; sentMsgId
	// is the request a recorded reply answers (invalid for a request)
	sentPacket    []byte
	sentFragments [][]byte
	sentMsgId     uint32

	// outbound requests awaiting window space
	sendQueue []*pendingRequest

	// a transition is in progress; no new state-mutating transition may
	// start and inbound messages are dropped, not queued
	busy bool
	// the message digest owned by this SA while suspended
	suspendedMd *Message

	// peer sent IKEV2_FRAGMENTATION_SUPPORTED
	PeerSupportsFrag bool
	// peer actually fragmented; respond in kind
	SeenFragments bool

	timers map[timerKind]*saTimer
}

// ConnectionPolicy is the configuration handle an SA hangs off.
type ConnectionPolicy struct {
	Name            string
	WindowSize      uint32
	DpdInterval     int // seconds; 0 disables liveness probes
	IsTransportMode bool
}

func (sa *Sa) IsChildSa() bool {
	return sa.ClonedFrom != 0
}

func (sa *Sa) Busy() bool {
	return sa.busy
}

// Unacked is the number of our requests still in flight.
func (sa *Sa) Unacked() uint32 {
	if sa.NextUse == InvalidMsgId {
		return 0
	}
	// beware of the invalid sentinel; LastAck == ^0 acts as -1
	return sa.NextUse - sa.LastAck - 1
}

// windowSize is fixed at one request in flight per direction; widening
// it needs per-msgid child indexing first. Neither SET_WINDOW_SIZE from
// the peer nor ConnectionPolicy.WindowSize is consulted.
func (sa *Sa) windowSize() uint32 {
	return 1
}

// HasRecordedResponse reports a cached reply for LastRecv.
func (sa *Sa) HasRecordedResponse() bool {
	return sa.LastReplied != InvalidMsgId && sa.LastReplied == sa.LastRecv
}

func (sa *Sa) recordSent(msgid uint32, packet []byte, fragments [][]byte) {
	sa.sentPacket = packet
	sa.sentFragments = fragments
	sa.sentMsgId = msgid
}

// spiKey identifies an IKE SA in the table.
type spiKey struct {
	i, r uint64
}

func makeSaKey(spiI, spiR protocol.Spi) spiKey {
	return spiKey{i: SpiToInt64(spiI), r: SpiToInt64(spiR)}
}
