package discovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/discovery"
)

const sampleRecord = "^RFID_READER_INFORMATION:7206C2,DHCP_SW:OFF,IP:192.168.1.116," +
	"MASK:255.255.255.0,GATEWAY:192.168.1.1,MAC:AA:BB:CC:DD:EE:FF,PORT:9090," +
	"HOST_SERVER_IP:192.168.1.100,HOST_SERVER_PORT:9091,MODE:SERVER,NET_STATE:ACTIVE$"

func TestParseAnnouncement(t *testing.T) {
	a, err := discovery.ParseAnnouncement([]byte(sampleRecord))
	require.NoError(t, err)

	assert.Equal(t, "7206C2", a.Model)
	assert.False(t, a.DHCP)
	assert.Equal(t, "192.168.1.116", a.IP.String())
	assert.Equal(t, "255.255.255.0", a.Mask.String())
	assert.Equal(t, "192.168.1.1", a.Gateway.String())
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", a.MAC.String())
	assert.Equal(t, 9090, a.Port)
	assert.Equal(t, "192.168.1.100", a.HostServerIP.String())
	assert.Equal(t, 9091, a.HostServerPort)
	assert.Equal(t, "SERVER", a.Mode)
	assert.True(t, a.Active)
	assert.Equal(t, "192.168.1.116:9090", a.Addr())
}

func TestParseAnnouncementDHCPOn(t *testing.T) {
	record := "^RFID_READER_INFORMATION:7206C2,DHCP_SW:ON,IP:10.1.2.3,PORT:9091,MODE:CLIENT,NET_STATE:INACTIVE$"
	a, err := discovery.ParseAnnouncement([]byte(record))
	require.NoError(t, err)

	assert.True(t, a.DHCP)
	assert.False(t, a.Active)
	assert.Equal(t, "CLIENT", a.Mode)
}

func TestParseAnnouncementRejectsGarbage(t *testing.T) {
	for _, data := range []string{
		"",
		"hello",
		"^SOMETHING_ELSE:1,IP:10.0.0.1$",
		"^RFID_READER_INFORMATION:7206C2,MODE:SERVER$", // no IP
	} {
		_, err := discovery.ParseAnnouncement([]byte(data))
		assert.ErrorIs(t, err, discovery.ErrNotAnnouncement, "input %q", data)
	}
}

func TestParseAnnouncementTolerantOfFraming(t *testing.T) {
	// Some firmware revisions omit the trailing '$' or append whitespace.
	record := "^RFID_READER_INFORMATION:7206C2,IP:10.0.0.5,PORT:9090\n"
	a, err := discovery.ParseAnnouncement([]byte(record))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", a.IP.String())
}
