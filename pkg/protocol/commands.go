package protocol

// Command classes.
const (
	// CmdSystem is the management command class handled by the reader's
	// main processor.
	CmdSystem byte = 0x01

	// CmdRF is passed through to the RF module (inventory control).
	CmdRF byte = 0x02

	// CmdUpgrade carries firmware image chunks.
	CmdUpgrade byte = 0x04

	// CmdTagNotify identifies unsolicited tag notifications.
	CmdTagNotify byte = 0x12
)

// CmdSystem subcommands.
const (
	SubReaderInfo   byte = 0x00
	SubComConfig    byte = 0x03
	SubSetIP        byte = 0x04
	SubGetNetwork   byte = 0x05
	SubGetMAC       byte = 0x06
	SubSetServer    byte = 0x07
	SubGetServer    byte = 0x08
	SubSetGPO       byte = 0x09
	SubGetGPI       byte = 0x0A
	SubSetAntenna   byte = 0x0B
	SubGetAntenna   byte = 0x0C
	SubSetWiegand   byte = 0x0D
	SubGetWiegand   byte = 0x0E
	SubReboot       byte = 0x0F
	SubSetTime      byte = 0x10
	SubGetTime      byte = 0x11
	SubKeepalive    byte = 0x12
	SubSetMAC       byte = 0x13
	SubFactoryReset byte = 0x14
	SubSetRS485     byte = 0x15
	SubGetRS485     byte = 0x16
	SubSetTagCache  byte = 0x17
	SubGetTagCache  byte = 0x18
	SubSetCacheTime byte = 0x19
	SubGetCacheTime byte = 0x1A
	SubGetTags      byte = 0x1B
	SubClearTags    byte = 0x1C
	SubDeleteTag    byte = 0x1D
	SubSetRelay     byte = 0x23
	SubGetRelay     byte = 0x24
	SubSetPing      byte = 0x2D
	SubGetPing      byte = 0x2E
	SubSetDHCP      byte = 0x2F
	SubGetDHCP      byte = 0x30
)

// CmdRF subcommands.
const (
	SubInventoryStart byte = 0x10
	SubInventoryStop  byte = 0xFF
)

// CmdUpgrade subcommands.
const (
	SubUpgradeChunk byte = 0x00
)

// CmdTagNotify subcommands distinguish the three notification payload
// shapes.
const (
	TagNotifyEPC    byte = 0x00
	TagNotifyEPCExt byte = 0x20
	TagNotifyTID    byte = 0x30
)

// CommandKey identifies a command for correlation: the reader echoes
// the request's (cmd, sub) pair on its response frame.
type CommandKey struct {
	Cmd byte
	Sub byte
}

// ReplyMode describes how the reader answers a command.
type ReplyMode uint8

const (
	// ReplySingle is one echoed response frame.
	ReplySingle ReplyMode = iota

	// ReplyNone means the reader may not answer at all (reboot, factory
	// reset, inventory control). Callers must not wait for a frame.
	ReplyNone

	// ReplyBurst is a response followed by an unbounded run of further
	// frames with the same key (stored-tag retrieval).
	ReplyBurst
)

// CommandSpec is one registry entry: a name for diagnostics, the reply
// discipline, and an optional decoder for the response payload.
type CommandSpec struct {
	Name   string
	Reply  ReplyMode
	Decode func(payload []byte) (any, error)
}

var registry = map[CommandKey]CommandSpec{
	{CmdSystem, SubReaderInfo}:   {Name: "reader-info", Decode: decodeAny(DecodeDeviceInfo)},
	{CmdSystem, SubComConfig}:    {Name: "com-config"},
	{CmdSystem, SubSetIP}:        {Name: "set-ip", Decode: decodeStatus},
	{CmdSystem, SubGetNetwork}:   {Name: "get-network", Decode: decodeAny(DecodeNetworkConfig)},
	{CmdSystem, SubGetMAC}:       {Name: "get-mac", Decode: decodeAny(DecodeMAC)},
	{CmdSystem, SubSetServer}:    {Name: "set-server-mode", Decode: decodeStatus},
	{CmdSystem, SubGetServer}:    {Name: "get-server-mode", Decode: decodeAny(DecodeServerMode)},
	{CmdSystem, SubSetGPO}:       {Name: "set-gpo", Decode: decodeStatus},
	{CmdSystem, SubGetGPI}:       {Name: "get-gpi", Decode: decodeAny(DecodeGPIStates)},
	{CmdSystem, SubSetAntenna}:   {Name: "set-antenna", Decode: decodeStatus},
	{CmdSystem, SubGetAntenna}:   {Name: "get-antenna", Decode: decodeAny(DecodeAntennaConfig)},
	{CmdSystem, SubSetWiegand}:   {Name: "set-wiegand", Decode: decodeStatus},
	{CmdSystem, SubGetWiegand}:   {Name: "get-wiegand", Decode: decodeAny(DecodeWiegandConfig)},
	{CmdSystem, SubReboot}:       {Name: "reboot", Reply: ReplyNone},
	{CmdSystem, SubSetTime}:      {Name: "set-time", Decode: decodeStatus},
	{CmdSystem, SubGetTime}:      {Name: "get-time", Decode: decodeAny(DecodeSystemTime)},
	{CmdSystem, SubKeepalive}:    {Name: "keepalive", Reply: ReplyNone},
	{CmdSystem, SubSetMAC}:       {Name: "set-mac", Decode: decodeStatus},
	{CmdSystem, SubFactoryReset}: {Name: "factory-reset", Reply: ReplyNone},
	{CmdSystem, SubSetRS485}:     {Name: "set-rs485", Decode: decodeStatus},
	{CmdSystem, SubGetRS485}:     {Name: "get-rs485", Decode: decodeAny(DecodeRS485Config)},
	{CmdSystem, SubSetTagCache}:  {Name: "set-tag-cache", Decode: decodeStatus},
	{CmdSystem, SubGetTagCache}:  {Name: "get-tag-cache"},
	{CmdSystem, SubSetCacheTime}: {Name: "set-cache-time", Decode: decodeStatus},
	{CmdSystem, SubGetCacheTime}: {Name: "get-cache-time"},
	{CmdSystem, SubGetTags}:      {Name: "get-stored-tags", Reply: ReplyBurst},
	{CmdSystem, SubClearTags}:    {Name: "clear-tags", Decode: decodeStatus},
	{CmdSystem, SubDeleteTag}:    {Name: "delete-tag", Decode: decodeStatus},
	{CmdSystem, SubSetRelay}:     {Name: "set-relay", Decode: decodeStatus},
	{CmdSystem, SubGetRelay}:     {Name: "get-relay", Decode: decodeAny(DecodeRelayConfig)},
	{CmdSystem, SubSetPing}:      {Name: "set-ping", Decode: decodeStatus},
	{CmdSystem, SubGetPing}:      {Name: "get-ping", Decode: decodeAny(DecodePingConfig)},
	{CmdSystem, SubSetDHCP}:      {Name: "set-dhcp", Decode: decodeStatus},
	{CmdSystem, SubGetDHCP}:      {Name: "get-dhcp"},

	{CmdRF, SubInventoryStart}: {Name: "start-inventory", Reply: ReplyNone},
	{CmdRF, SubInventoryStop}:  {Name: "stop-inventory", Reply: ReplyNone},

	{CmdUpgrade, SubUpgradeChunk}: {Name: "upgrade-chunk", Decode: decodeAny(DecodeUpgradeAck)},

	{CmdTagNotify, TagNotifyEPC}:    {Name: "tag-notify-epc", Reply: ReplyNone},
	{CmdTagNotify, TagNotifyEPCExt}: {Name: "tag-notify-epc-ext", Reply: ReplyNone},
	{CmdTagNotify, TagNotifyTID}:    {Name: "tag-notify-tid", Reply: ReplyNone},
}

// LookupCommand returns the registry entry for a key.
func LookupCommand(k CommandKey) (CommandSpec, bool) {
	spec, ok := registry[k]
	return spec, ok
}

// IsTagNotification reports whether the frame is an unsolicited tag
// notification in any of its three payload shapes.
func IsTagNotification(f Frame) bool {
	if f.Cmd != CmdTagNotify {
		return false
	}
	switch f.Sub {
	case TagNotifyEPC, TagNotifyEPCExt, TagNotifyTID:
		return true
	}
	return false
}

// decodeAny adapts a typed decoder to the registry's signature.
func decodeAny[T any](fn func([]byte) (T, error)) func([]byte) (any, error) {
	return func(p []byte) (any, error) {
		return fn(p)
	}
}

func decodeStatus(p []byte) (any, error) {
	return DecodeStatus(p)
}
