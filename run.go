package ike

import (
	"net"
)

// packet is one received datagram queued for the loop.
type packet struct {
	b             []byte
	local, remote net.Addr
}

// Run is the event loop: all network input, timer expiry and resumed
// crypto work funnels through here, so no SA is ever touched by two
// tasks at once.
func (d *Demux) Run(conn Conn) error {
	d.running = true
	defer func() { d.running = false }()

	packets := make(chan packet, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			b, remote, localIP, err := conn.ReadPacket()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case packets <- packet{b: b, local: &net.UDPAddr{IP: localIP}, remote: remote}:
			case <-d.done:
				return
			}
		}
	}()

	for {
		select {
		case p := <-packets:
			d.ProcessPacket(p.b, p.local, p.remote)
		case ev := <-d.timerCh:
			d.handleTimer(ev)
		case ev := <-d.resumeCh:
			d.handleResume(ev)
		case err := <-readErr:
			return err
		case <-d.done:
			return nil
		}
	}
}

// Close stops the loop and cancels the timers of all SAs; the SAs stay
// in the table.
func (d *Demux) Close() {
	select {
	case <-d.done:
		return
	default:
	}
	close(d.done)
	d.table.ForEach(func(sa *Sa) {
		d.cancelTimers(sa)
	})
}
