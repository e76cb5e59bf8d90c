package common

// HTTP headers used by the RPC handshake.
const (
	HeaderAPIVersion           = "Api-Version"
	HeaderSupportedAPIVersions = "Supported-Api-Versions"
	HeaderAuthorization        = "Authorization"
	HeaderAuthor               = "Author"
	HeaderSignature            = "Signature"
	HeaderInvitationToken      = "Invitation-Token"
	HeaderLastEventID          = "Last-Event-Id"

	AuthorizationMethodSignEd25519 = "PARSEC-SIGN-ED25519"

	ContentTypeMsgpack     = "application/msgpack"
	ContentTypeEventStream = "text/event-stream"
	ContentTypeJSON        = "application/json"
)
