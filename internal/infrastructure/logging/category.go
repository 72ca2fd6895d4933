package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	RabbitMQ        Category = "RabbitMQ"
	RequestResponse Category = "RequestResponse"
	Relay           Category = "Relay"
	Tunnel          Category = "Tunnel"
	Pairing         Category = "Pairing"
	Sink            Category = "Sink"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Relay
	Connection SubCategory = "Connection"
	Room       SubCategory = "Room"
	Forward    SubCategory = "Forward"
	Sweep      SubCategory = "Sweep"

	// Tunnel / Pairing
	Reconnect SubCategory = "Reconnect"
	Session   SubCategory = "Session"
	Dispatch  SubCategory = "Dispatch"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorMessage ExtraKey = "ErrorMessage"
	ConnID       ExtraKey = "ConnId"
	RoomCode     ExtraKey = "RoomCode"
	MessageType  ExtraKey = "MessageType"
	URL          ExtraKey = "Url"
	Attempt      ExtraKey = "Attempt"
)
