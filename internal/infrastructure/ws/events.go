package ws

// Frame types on the relay socket.
const (
	// requests, answered with an ack carrying the same id
	CreateRoom     = "create-room"
	JoinRoom       = "join-room"
	RegenerateRoom = "regenerate-room"

	// signaling, relayed both ways and tagged with the sender
	Offer        = "offer"
	Answer       = "answer"
	ICECandidate = "ice-candidate"

	// application traffic
	RemoteMessage = "remote-message" // client -> host
	RemoteStatus  = "remote-status"  // host -> client

	// relay notifications
	Ack              = "ack"
	ClientJoined     = "client-joined"
	PeerDisconnected = "peer-disconnected"
	RoomClosed       = "room-closed"
	RoomExpired      = "room-expired"
)

// Ack error codes. Clients branch on these; the error text is for people.
const (
	CodeRoomNotFound     = "room_not_found"
	CodeRoomExpired      = "room_expired"
	CodeRoomAlreadyBound = "room_already_bound"
	CodeRateLimited      = "rate_limited"
	CodeInvalidRequest   = "invalid_request"
	CodeInternal         = "internal"
)

const JoinFailedText = "Could not connect. The code may have expired."
