package transport

import "time"

// The UDP transport layers a thin acknowledgement window on top of raw
// datagrams. Every datagram header carries the sender's packet sequence
// plus an ack of the highest reliable sequence seen and a 32-bit history
// bitfield of the sequences before it. Reliable payloads are retransmitted
// until acknowledged and deduplicated on receipt.

const (
	retransmitAfter = 200 * time.Millisecond
	ackWindowBits   = 32
)

// seqNewer reports whether a is a more recent sequence than b under
// uint32 wraparound.
func seqNewer(a, b uint32) bool {
	return int32(a-b) > 0
}

type pendingSend struct {
	seq      uint32
	payload  []byte
	lastSent time.Time
}

// reliableOutbox tracks unacknowledged reliable payloads for one peer.
// Callers synchronize access; the outbox itself holds no lock.
type reliableOutbox struct {
	nextSeq       uint32
	nextPacketSeq uint32
	pending       map[uint32]*pendingSend
}

func newReliableOutbox() *reliableOutbox {
	return &reliableOutbox{nextSeq: 1, nextPacketSeq: 1, pending: make(map[uint32]*pendingSend)}
}

// add registers a payload for retransmission and returns its reliable
// sequence number.
func (o *reliableOutbox) add(payload []byte) uint32 {
	seq := o.nextSeq
	o.nextSeq++
	o.pending[seq] = &pendingSend{seq: seq, payload: append([]byte(nil), payload...)}
	return seq
}

// markSent stamps the last transmission time of a pending payload.
func (o *reliableOutbox) markSent(seq uint32, now time.Time) {
	if p, ok := o.pending[seq]; ok {
		p.lastSent = now
	}
}

// due returns the pending payloads whose last transmission is older than
// the retransmit threshold.
func (o *reliableOutbox) due(now time.Time) []*pendingSend {
	var out []*pendingSend
	for _, p := range o.pending {
		if p.lastSent.IsZero() || now.Sub(p.lastSent) >= retransmitAfter {
			out = append(out, p)
		}
	}
	return out
}

// ack clears every pending payload covered by the remote ack and its
// history bitfield.
func (o *reliableOutbox) ack(ack uint32, bits uint32) {
	if ack != 0 {
		delete(o.pending, ack)
	}
	for i := 0; i < ackWindowBits; i++ {
		if bits&(1<<uint(i)) != 0 {
			delete(o.pending, ack-1-uint32(i))
		}
	}
}

// packetSeq hands out the per-datagram sequence counter.
func (o *reliableOutbox) packetSeq() uint32 {
	seq := o.nextPacketSeq
	o.nextPacketSeq++
	return seq
}

// reliableInbox records which reliable sequences arrived from one peer, so
// retransmissions are suppressed and acks can be built. Bookkeeping is
// bounded: only the ack window below the newest sequence is retained, so
// memory stays constant no matter how long the connection lives. Callers
// synchronize access.
type reliableInbox struct {
	latest    uint32
	received  map[uint32]bool
	delivered map[uint32]bool
}

func newReliableInbox() *reliableInbox {
	return &reliableInbox{received: make(map[uint32]bool), delivered: make(map[uint32]bool)}
}

// observe records an arrival and reports whether the payload is new, i.e.
// has not been delivered before. Arrivals older than the ack window are
// treated as stale duplicates: anything that far behind was acknowledged
// before the window slid past it, and retransmission stops on ack.
func (i *reliableInbox) observe(seq uint32) bool {
	if i.latest != 0 && seqNewer(i.latest, seq) && i.latest-seq > ackWindowBits {
		return false
	}
	i.received[seq] = true
	if i.latest == 0 || seqNewer(seq, i.latest) {
		i.latest = seq
		i.prune()
	}
	if i.delivered[seq] {
		return false
	}
	i.delivered[seq] = true
	return true
}

// prune evicts bookkeeping the ack window can no longer cover. The maps
// stay a few entries above the window size; the loop touches only those.
func (i *reliableInbox) prune() {
	for seq := range i.received {
		if seqNewer(i.latest, seq) && i.latest-seq > ackWindowBits {
			delete(i.received, seq)
			delete(i.delivered, seq)
		}
	}
}

// ackFields builds the ack and history bitfield advertised in outgoing
// headers.
func (i *reliableInbox) ackFields() (uint32, uint32) {
	if i.latest == 0 {
		return 0, 0
	}
	var bits uint32
	for n := 0; n < ackWindowBits; n++ {
		if i.received[i.latest-1-uint32(n)] {
			bits |= 1 << uint(n)
		}
	}
	return i.latest, bits
}
