package config

const (
	KeyBus = "bus"
	KeyLog = "log"

	KeyDebug = "debug"

	KeyBusName        = KeyBus + ".name"
	KeyBusDir         = KeyBus + ".dir"
	KeyBusSize        = KeyBus + ".size"
	KeyBusReplyName   = KeyBus + ".reply_name"
	KeyBusReplySize   = KeyBus + ".reply_size"
	KeyBusReadTimeout = KeyBus + ".read_timeout"
	KeyBusPingTimeout = KeyBus + ".ping_timeout"
	KeyBusStallAfter  = KeyBus + ".stall_after"
	KeyBusWriteOnly   = KeyBus + ".write_only"

	KeyLogLevel  = KeyLog + ".level"
	KeyLogFormat = KeyLog + ".format"
)

// EnvPrefix is prepended to every environment override, e.g. ROXY_BUS_NAME.
const EnvPrefix = "ROXY"
