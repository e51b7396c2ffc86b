package ike

import (
	"time"
)

type timerKind int

const (
	timerRetransmit timerKind = iota + 1
	timerReplace
	timerDiscard
	timerLiveness
)

func (k timerKind) String() string {
	switch k {
	case timerRetransmit:
		return "retransmit"
	case timerReplace:
		return "replace"
	case timerDiscard:
		return "discard"
	case timerLiveness:
		return "liveness"
	}
	return "timer(?)"
}

// saTimer is a single-shot per-SA timer; firing posts back to the event
// loop, which revalidates the SA before acting.
type saTimer struct {
	kind  timerKind
	timer *time.Timer
	// retransmit bookkeeping
	tries    int
	interval time.Duration
}

type timerEvent struct {
	serial uint64
	kind   timerKind
}

func (d *Demux) scheduleTimer(sa *Sa, kind timerKind, after time.Duration) {
	if sa.timers == nil {
		sa.timers = make(map[timerKind]*saTimer)
	}
	if old, ok := sa.timers[kind]; ok {
		old.timer.Stop()
	}
	st := &saTimer{kind: kind, interval: after}
	serial := sa.Serial
	st.timer = time.AfterFunc(Jitter(after, 0.2), func() {
		d.postTimer(timerEvent{serial: serial, kind: kind})
	})
	sa.timers[kind] = st
}

func (d *Demux) cancelTimer(sa *Sa, kind timerKind) {
	if st, ok := sa.timers[kind]; ok {
		st.timer.Stop()
		delete(sa.timers, kind)
	}
}

// cancelExchangeTimers drops whatever exchange timer is pending before
// a new one is armed; the liveness timer is not an exchange timer.
func (d *Demux) cancelExchangeTimers(sa *Sa) {
	d.cancelTimer(sa, timerRetransmit)
	d.cancelTimer(sa, timerReplace)
	d.cancelTimer(sa, timerDiscard)
}

// cancelTimers runs at SA deletion; a timer that already fired will
// find the SA gone and turn into a no-op.
func (d *Demux) cancelTimers(sa *Sa) {
	for _, st := range sa.timers {
		st.timer.Stop()
	}
	sa.timers = nil
}

func (d *Demux) postTimer(ev timerEvent) {
	select {
	case d.timerCh <- ev:
	case <-d.done:
	}
}

// handleTimer runs on the event loop.
func (d *Demux) handleTimer(ev timerEvent) {
	sa := d.table.BySerial(ev.serial)
	if sa == nil {
		return
	}
	st := sa.timers[ev.kind]
	if st == nil {
		return
	}
	log := d.saLog(sa)
	switch ev.kind {
	case timerRetransmit:
		st.tries++
		if st.tries > d.cfg.RetransmitTries {
			log.Warningf("giving up on exchange after %d retransmits", st.tries-1)
			d.emit(EventRetryExhausted, sa.Serial)
			d.deleteSa(sa)
			return
		}
		log.Debugf("retransmitting request, try %d", st.tries)
		d.sendRecorded(sa)
		st.interval *= 2
		serial := sa.Serial
		st.timer = time.AfterFunc(Jitter(st.interval, 0.2), func() {
			d.postTimer(timerEvent{serial: serial, kind: timerRetransmit})
		})
	case timerReplace:
		delete(sa.timers, timerReplace)
		d.emit(EventSaReplaceDue, sa.Serial)
	case timerDiscard:
		delete(sa.timers, timerDiscard)
		log.Info("discard timer expired")
		d.deleteSa(sa)
	case timerLiveness:
		delete(sa.timers, timerLiveness)
		d.emit(EventLivenessDue, sa.Serial)
	}
}
