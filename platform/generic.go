//go:build !linux

package platform

import (
	"net"

	"github.com/pkg/errors"
)

var errUnsupported = errors.New("kernel SA installation is only implemented on linux")

func InstallChildSa(sa *SaParams) error {
	return errUnsupported
}

func RemoveChildSa(sa *SaParams) error {
	return errUnsupported
}

func GetLocalAddress(remote net.IP) (net.IP, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(remote.String(), "500"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
