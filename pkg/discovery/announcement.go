// Package discovery finds readers on the local network.
//
// Readers announce themselves over UDP multicast with a text record of
// comma-separated key:value fields, bracketed by '^' and '$':
//
//	^RFID_READER_INFORMATION:7206C2,DHCP_SW:OFF,IP:192.168.1.116,...$
//
// They also answer unicast and broadcast probes on their UDP port with
// the same record.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Announcement is one parsed reader announcement.
type Announcement struct {
	// Model is the hardcoded model identifier (e.g. "7206C2").
	Model string

	// DHCP reports whether the reader's DHCP client is on.
	DHCP bool

	IP      net.IP
	Mask    net.IP
	Gateway net.IP
	MAC     net.HardwareAddr

	// Port is the reader's TCP listen port.
	Port int

	// HostServerIP and HostServerPort are the target when the reader
	// runs in client mode.
	HostServerIP   net.IP
	HostServerPort int

	// Mode is "SERVER" or "CLIENT".
	Mode string

	// Active reports whether the reader currently has a live TCP
	// connection (NET_STATE).
	Active bool

	// Source is the UDP address the announcement arrived from.
	Source *net.UDPAddr

	// ReceivedAt is when the announcement was received.
	ReceivedAt time.Time
}

// Addr returns the reader's TCP dial address.
func (a *Announcement) Addr() string {
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

func (a *Announcement) String() string {
	return fmt.Sprintf("%s %s (%s, %s)", a.Model, a.Addr(), a.MAC, a.Mode)
}

// announcementPrefix keys the record; probes reuse it.
const announcementPrefix = "RFID_READER_INFORMATION"

// ErrNotAnnouncement indicates a datagram that is not a reader
// announcement.
var ErrNotAnnouncement = errors.New("not a reader announcement")

// ParseAnnouncement parses a reader announcement datagram.
func ParseAnnouncement(data []byte) (*Announcement, error) {
	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, "^")
	text = strings.TrimSuffix(text, "$")
	if !strings.HasPrefix(text, announcementPrefix+":") {
		return nil, ErrNotAnnouncement
	}

	a := &Announcement{ReceivedAt: time.Now()}
	for _, field := range strings.Split(text, ",") {
		// The MAC value itself contains colons, so split on the first
		// one only.
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		switch key {
		case announcementPrefix:
			a.Model = value
		case "DHCP_SW":
			a.DHCP = value == "ON"
		case "IP":
			a.IP = net.ParseIP(value)
		case "MASK":
			a.Mask = net.ParseIP(value)
		case "GATEWAY":
			a.Gateway = net.ParseIP(value)
		case "MAC":
			mac, err := net.ParseMAC(value)
			if err == nil {
				a.MAC = mac
			}
		case "PORT":
			a.Port, _ = strconv.Atoi(value)
		case "HOST_SERVER_IP":
			a.HostServerIP = net.ParseIP(value)
		case "HOST_SERVER_PORT":
			a.HostServerPort, _ = strconv.Atoi(value)
		case "MODE":
			a.Mode = value
		case "NET_STATE":
			a.Active = value == "ACTIVE"
		}
	}

	if a.IP == nil {
		return nil, fmt.Errorf("%w: missing IP field", ErrNotAnnouncement)
	}
	return a, nil
}
