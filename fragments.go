package ike

import (
	"github.com/msgboxio/ikev2/protocol"
)

// fragment is one collected SKF: the full datagram clone and the offset
// of its ciphertext, so that each fragment can be integrity-checked and
// decrypted on its own (rfc7383 2.5).
type fragment struct {
	packet   []byte
	ivOffset int
}

// reassembly collects the fragments of one encrypted message.
type reassembly struct {
	frags   []fragment // 1-based; index 0 unused
	count   int
	total   uint16
	firstNp protocol.PayloadType // next payload of fragment 1
}

func newReassembly(total uint16) *reassembly {
	return &reassembly{
		frags: make([]fragment, int(total)+1),
		total: total,
	}
}

func (r *reassembly) complete() bool {
	return r != nil && r.count == int(r.total)
}

func (r *reassembly) size() (n int) {
	for _, f := range r.frags {
		n += len(f.packet)
	}
	return
}

// checkFragment vets an incoming SKF against policy and against any
// reassembly already in progress. It may release the stored fragments
// when the peer restarted with a larger total (it ratcheted its MTU
// down). Returns false when the fragment must be dropped.
func (d *Demux) checkFragment(sa *Sa, md *Message) bool {
	skf := md.Skf()
	log := d.saLog(sa)

	if !d.cfg.FragmentationAllowed {
		log.Debug("discarding encrypted fragment - fragmentation not allowed by local policy")
		return false
	}
	if !sa.PeerSupportsFrag {
		log.Debug("discarding encrypted fragment - peer never proposed fragmentation")
		return false
	}

	// number must be in [1, total], total bounded, and only the first
	// fragment names the first embedded payload
	if skf.FragmentNumber == 0 ||
		skf.FragmentNumber > skf.TotalFragments ||
		skf.TotalFragments > protocol.MAX_IKE_FRAGMENTS ||
		(skf.FragmentNumber == 1) == (skf.NextPayloadType() == protocol.PayloadTypeNone) {
		log.Debugf("ignoring invalid encrypted fragment %d/%d",
			skf.FragmentNumber, skf.TotalFragments)
		return false
	}

	if sa.frags == nil {
		return true
	}
	if skf.TotalFragments != sa.frags.total {
		if skf.TotalFragments > sa.frags.total {
			// peer started over with more, smaller fragments
			log.Debugf("discarding saved fragments - new total %d > %d",
				skf.TotalFragments, sa.frags.total)
			sa.frags = nil
			return true
		}
		log.Debugf("ignoring odd encrypted fragment - total shrank %d < %d",
			skf.TotalFragments, sa.frags.total)
		return false
	}
	if sa.frags.frags[skf.FragmentNumber].packet != nil {
		log.Debug("ignoring repeated encrypted fragment")
		return false
	}
	return true
}

// collectFragment stores a vetted SKF; true only upon first arrival of
// the last missing fragment.
func (d *Demux) collectFragment(sa *Sa, md *Message) bool {
	if !d.checkFragment(sa, md) {
		return false
	}
	skf := md.Skf()

	// if receiving fragments, respond with fragments too
	if !sa.SeenFragments {
		sa.SeenFragments = true
	}

	if sa.frags == nil {
		sa.frags = newReassembly(skf.TotalFragments)
	}
	if sa.frags.size()+len(md.Data) > protocol.MAX_REASSEMBLED_LEN {
		d.saLog(sa).Warning("reassembled message would be too large; discarding fragments")
		sa.frags = nil
		return false
	}
	sa.frags.frags[skf.FragmentNumber] = fragment{
		packet:   append([]byte{}, md.Data...),
		ivOffset: md.ivOffset,
	}
	if skf.FragmentNumber == 1 {
		sa.frags.firstNp = skf.NextPayloadType()
	}
	sa.frags.count++
	return sa.frags.complete()
}

// decryptReassembled integrity-checks and decrypts every collected
// fragment and concatenates the plaintexts.
func (r *reassembly) decrypt(suite Suite, forInitiator bool) ([]byte, protocol.PayloadType, error) {
	var clear []byte
	for i := 1; i <= int(r.total); i++ {
		f := r.frags[i]
		b, err := suite.VerifyDecrypt(f.packet[:f.ivOffset], f.packet[f.ivOffset:], forInitiator)
		if err != nil {
			return nil, protocol.PayloadTypeNone, err
		}
		clear = append(clear, b...)
	}
	return clear, r.firstNp, nil
}
