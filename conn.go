package ike

import (
	"io"
	"net"
	"os"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Conn is the udp transport; ReadPacket also reports which local IP the
// datagram arrived on, needed when bound to the any-address.
type Conn interface {
	ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error)
	WritePacket(reply []byte, remoteAddr net.Addr) error
	Close() error
}

type pconnV4 ipv4.PacketConn

func (c *pconnV4) Close() error {
	return (*ipv4.PacketConn)(c).Close()
}

type pconnV6 ipv6.PacketConn

func (c *pconnV6) Close() error {
	return (*ipv6.PacketConn)(c).Close()
}

var ErrorUdpOnly = errors.New("only udp is supported")

// normally we bind a dual stack address; on mac, receiving from v4
// addresses does not give a remote address then
func checkV4onX(address string) (bool, error) {
	if runtime.GOOS != "darwin" {
		return false, nil
	}
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return false, err
	}
	return addr.IP.To4() != nil, nil
}

func Listen(network, address string, log *logrus.Logger) (Conn, error) {
	isV4, err := checkV4onX(address)
	if err != nil {
		return nil, err
	}
	if isV4 {
		return listenUDP4(address, log)
	}
	switch network {
	case "udp4":
		return listenUDP4(address, log)
	case "udp6", "udp":
		return listenUDP6(address, log)
	}
	return nil, ErrorUdpOnly
}

func listenUDP4(localString string, log *logrus.Logger) (*pconnV4, error) {
	udp, err := net.ListenPacket("udp4", localString)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	p := ipv4.NewPacketConn(udp)
	// the socket could be bound to any(0.0.0.0); we need the exact
	// address each packet came in on
	cf := ipv4.FlagTTL | ipv4.FlagSrc | ipv4.FlagDst | ipv4.FlagInterface
	if err := p.SetControlMessage(cf, true); err != nil {
		if protocolNotSupported(err) {
			log.Warningf("udp source address detection not supported on %s", runtime.GOOS)
		} else {
			p.Close()
			return nil, err
		}
	}
	log.Infof("socket listening: %s", udp.LocalAddr())
	return (*pconnV4)(p), nil
}

func listenUDP6(localString string, log *logrus.Logger) (*pconnV6, error) {
	udp, err := net.ListenPacket("udp", localString)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}
	p := ipv6.NewPacketConn(udp)
	cf := ipv6.FlagSrc | ipv6.FlagDst | ipv6.FlagInterface
	if err := p.SetControlMessage(cf, true); err != nil {
		if protocolNotSupported(err) {
			log.Warningf("udp source address detection not supported on %s", runtime.GOOS)
		} else {
			p.Close()
			return nil, err
		}
	}
	log.Infof("socket listening: %s", udp.LocalAddr())
	return (*pconnV6)(p), nil
}

func (p *pconnV4) ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error) {
	b = make([]byte, 3000)
	n, cm, remoteAddr, err := p.ReadFrom(b)
	if err == nil {
		b = b[:n]
		if cm != nil {
			localIP = cm.Dst
		}
	}
	return
}

func (p *pconnV6) ReadPacket() (b []byte, remoteAddr net.Addr, localIP net.IP, err error) {
	b = make([]byte, 3000)
	n, cm, remoteAddr, err := p.ReadFrom(b)
	if err == nil {
		b = b[:n]
		if cm != nil { // nil on mac
			localIP = cm.Dst
		}
	}
	return
}

func (p *pconnV4) WritePacket(reply []byte, remoteAddr net.Addr) error {
	n, err := p.WriteTo(reply, nil, remoteAddr)
	if err != nil {
		return err
	} else if n != len(reply) {
		return io.ErrShortWrite
	}
	return nil
}

func (p *pconnV6) WritePacket(reply []byte, remoteAddr net.Addr) error {
	n, err := p.WriteTo(reply, nil, remoteAddr)
	if err != nil {
		return err
	} else if n != len(reply) {
		return io.ErrShortWrite
	}
	return nil
}

// InnerConn returns the conn buried within the conn used here
func InnerConn(p Conn) net.Conn {
	if p4Conn, ok := p.(*pconnV4); ok {
		return p4Conn.PacketConn.(net.Conn)
	} else if p6Conn, ok := p.(*pconnV6); ok {
		return p6Conn.PacketConn.(net.Conn)
	}
	panic("invalid Conn")
}

// copied from golang.org/x/net/internal/nettest
func protocolNotSupported(err error) bool {
	switch err := err.(type) {
	case syscall.Errno:
		switch err {
		case syscall.EPROTONOSUPPORT, syscall.ENOPROTOOPT:
			return true
		}
	case *os.SyscallError:
		switch err := err.Err.(type) {
		case syscall.Errno:
			switch err {
			case syscall.EPROTONOSUPPORT, syscall.ENOPROTOOPT:
				return true
			}
		}
	}
	return false
}
