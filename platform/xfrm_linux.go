package platform

import (
	"net"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
)

const reqid = 256

func kernelAlgoNames(sa *SaParams) (crypt, auth string, err error) {
	switch protocol.EncrTransformId(sa.EncrTransformId) {
	case protocol.ENCR_AES_CBC, 0:
		crypt = "cbc(aes)"
	case protocol.ENCR_CAMELLIA_CBC:
		crypt = "cbc(camellia)"
	default:
		return "", "", errors.Errorf("no kernel name for encr transform %d", sa.EncrTransformId)
	}
	switch protocol.AuthTransformId(sa.AuthTransformId) {
	case protocol.AUTH_HMAC_SHA1_96, 0:
		auth = "hmac(sha1)"
	case protocol.AUTH_HMAC_SHA2_256_128:
		auth = "hmac(sha256)"
	default:
		return "", "", errors.Errorf("no kernel name for auth transform %d", sa.AuthTransformId)
	}
	return
}

func xfrmMode(sa *SaParams) netlink.Mode {
	if sa.IsTransportMode {
		return netlink.XFRM_MODE_TRANSPORT
	}
	return netlink.XFRM_MODE_TUNNEL
}

func makeSaPolicies(sa *SaParams) (policies []*netlink.XfrmPolicy) {
	tmpl := netlink.XfrmPolicyTmpl{
		Src:   sa.Ini,
		Dst:   sa.Res,
		Proto: netlink.XFRM_PROTO_ESP,
		Mode:  xfrmMode(sa),
		Reqid: reqid,
	}
	rtmpl := tmpl
	rtmpl.Src, rtmpl.Dst = sa.Res, sa.Ini

	outTmpl, inTmpl := tmpl, rtmpl
	if sa.IsResponder {
		outTmpl, inTmpl = rtmpl, tmpl
	}
	srcNet, dstNet := sa.IniNet, sa.ResNet
	if sa.IsResponder {
		srcNet, dstNet = sa.ResNet, sa.IniNet
	}

	out := &netlink.XfrmPolicy{
		Src:      srcNet,
		Dst:      dstNet,
		Dir:      netlink.XFRM_DIR_OUT,
		Priority: 1795,
		Tmpls:    []netlink.XfrmPolicyTmpl{outTmpl},
	}
	in := &netlink.XfrmPolicy{
		Src:      dstNet,
		Dst:      srcNet,
		Dir:      netlink.XFRM_DIR_IN,
		Priority: 1795,
		Tmpls:    []netlink.XfrmPolicyTmpl{inTmpl},
	}
	fwd := &netlink.XfrmPolicy{
		Src:      dstNet,
		Dst:      srcNet,
		Dir:      netlink.XFRM_DIR_FWD,
		Priority: 1795,
		Tmpls:    []netlink.XfrmPolicyTmpl{inTmpl},
	}
	return append(policies, out, in, fwd)
}

func makeSaStates(sa *SaParams) (states []*netlink.XfrmState, err error) {
	crypt, auth, err := kernelAlgoNames(sa)
	if err != nil {
		return nil, err
	}
	mode := xfrmMode(sa)
	state := func(src, dst net.IP, spi int, ek, ak []byte) *netlink.XfrmState {
		return &netlink.XfrmState{
			Src:          src,
			Dst:          dst,
			Proto:        netlink.XFRM_PROTO_ESP,
			Mode:         mode,
			Spi:          spi,
			Reqid:        reqid,
			ReplayWindow: 32,
			Auth:         &netlink.XfrmStateAlgo{Name: auth, Key: ak},
			Crypt:        &netlink.XfrmStateAlgo{Name: crypt, Key: ek},
		}
	}
	// initiator->responder traffic is protected by the responder's SPI
	states = append(states,
		state(sa.Ini, sa.Res, sa.SpiR, sa.EspEi, sa.EspAi),
		state(sa.Res, sa.Ini, sa.SpiI, sa.EspEr, sa.EspAr))
	return
}

// InstallChildSa writes the policy and state rules for one Child SA
// pair into the xfrm subsystem.
func InstallChildSa(sa *SaParams) error {
	for _, policy := range makeSaPolicies(sa) {
		if err := netlink.XfrmPolicyAdd(policy); err != nil {
			return errors.Wrapf(err, "adding policy %v", policy)
		}
	}
	states, err := makeSaStates(sa)
	if err != nil {
		return err
	}
	for _, state := range states {
		if err := netlink.XfrmStateAdd(state); err != nil {
			return errors.Wrapf(err, "adding state %v", state)
		}
	}
	return nil
}

// RemoveChildSa deletes what InstallChildSa added.
func RemoveChildSa(sa *SaParams) error {
	var firstErr error
	for _, policy := range makeSaPolicies(sa) {
		if err := netlink.XfrmPolicyDel(policy); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "removing policy %v", policy)
		}
	}
	states, err := makeSaStates(sa)
	if err != nil {
		return err
	}
	for _, state := range states {
		if err := netlink.XfrmStateDel(state); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "removing state %v", state)
		}
	}
	return firstErr
}

// GetLocalAddress finds the source address the kernel would use to
// reach remote.
func GetLocalAddress(remote net.IP) (net.IP, error) {
	routes, err := netlink.RouteGet(remote)
	if err != nil {
		return nil, err
	}
	return routes[0].Src, nil
}
