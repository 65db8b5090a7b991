package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// Discovery constants.
const (
	// MulticastGroup is the group readers announce on.
	MulticastGroup = "230.1.1.116"

	// DefaultPort is the UDP port readers listen and announce on.
	DefaultPort = 9090
)

// Listener receives reader announcements from the multicast group and
// from probe responses.
type Listener struct {
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	port   int
	events chan *Announcement

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen joins the announcement multicast group on ifi (nil for the
// system default interface) and starts receiving. Port 0 uses
// DefaultPort.
func Listen(ifi *net.Interface, port int) (*Listener, error) {
	if port <= 0 {
		port = DefaultPort
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(MulticastGroup)}
	if err := pconn.JoinGroup(ifi, group); err != nil {
		conn.Close()
		return nil, fmt.Errorf("join group %s: %w", MulticastGroup, err)
	}

	l := &Listener{
		conn:   conn,
		pconn:  pconn,
		port:   port,
		events: make(chan *Announcement, 16),
		closed: make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

// Announcements returns the channel of parsed announcements.
func (l *Listener) Announcements() <-chan *Announcement {
	return l.events
}

// Probe asks readers to announce themselves immediately by sending the
// information request to both the broadcast and multicast addresses.
func (l *Listener) Probe() error {
	probe := []byte("^" + announcementPrefix)
	targets := []*net.UDPAddr{
		{IP: net.IPv4bcast, Port: l.port},
		{IP: net.ParseIP(MulticastGroup), Port: l.port},
	}

	var firstErr error
	for _, addr := range targets {
		if _, err := l.conn.WriteToUDP(probe, addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close leaves the group and stops the listener.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.pconn.LeaveGroup(nil, &net.UDPAddr{IP: net.ParseIP(MulticastGroup)})
		err = l.conn.Close()
	})
	return err
}

func (l *Listener) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.closed:
			default:
				l.Close()
			}
			return
		}

		a, err := ParseAnnouncement(buf[:n])
		if err != nil {
			continue
		}
		a.Source = src

		select {
		case l.events <- a:
		default:
			// Slow consumer; announcements repeat every few seconds.
		}
	}
}

// Discover probes for readers and collects unique announcements (keyed
// by MAC) until ctx expires.
func Discover(ctx context.Context, ifi *net.Interface, port int) ([]*Announcement, error) {
	l, err := Listen(ifi, port)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	if err := l.Probe(); err != nil {
		return nil, err
	}

	seen := make(map[string]*Announcement)
	for {
		select {
		case <-ctx.Done():
			found := make([]*Announcement, 0, len(seen))
			for _, a := range seen {
				found = append(found, a)
			}
			return found, nil
		case a := <-l.Announcements():
			seen[a.MAC.String()] = a
		}
	}
}

// WaitFor blocks until a reader with the given MAC announces itself, a
// convenience for boot-time ordering.
func WaitFor(ctx context.Context, ifi *net.Interface, port int, mac net.HardwareAddr) (*Announcement, error) {
	l, err := Listen(ifi, port)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	probeTick := time.NewTicker(3 * time.Second)
	defer probeTick.Stop()
	l.Probe()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-probeTick.C:
			l.Probe()
		case a := <-l.Announcements():
			if a.MAC.String() == mac.String() {
				return a, nil
			}
		}
	}
}
