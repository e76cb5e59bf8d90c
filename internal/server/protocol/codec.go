package protocol

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrInvalidMsgFormat = errors.New("invalid message format")
	ErrUnknownCommand   = errors.New("unknown command")
)

// Req is implemented by every command request.
type Req interface {
	Cmd() string
}

// ConnectionKind selects the command family a request belongs to.
type ConnectionKind string

const (
	KindAnonymous     ConnectionKind = "anonymous"
	KindInvited       ConnectionKind = "invited"
	KindAuthenticated ConnectionKind = "authenticated"
)

type command struct {
	new      func() Req
	minMajor int
	maxMajor int // 0 means no upper bound
}

func (c command) availableIn(v APIVersion) bool {
	return v.Major >= c.minMajor && (c.maxMajor == 0 || v.Major <= c.maxMajor)
}

func cmd[T any, PT interface {
	*T
	Req
}]() command {
	return command{new: func() Req { return PT(new(T)) }}
}

func cmdRange[T any, PT interface {
	*T
	Req
}](minMajor, maxMajor int) command {
	c := cmd[T, PT]()
	c.minMajor, c.maxMajor = minMajor, maxMajor
	return c
}

func table(cmds ...command) map[string]command {
	m := make(map[string]command, len(cmds))
	for _, c := range cmds {
		m[c.new().Cmd()] = c
	}
	return m
}

var commands = map[ConnectionKind]map[string]command{
	KindAnonymous: table(
		cmd[PingReq](),
		cmd[OrganizationBootstrapReq](),
		cmd[PkiEnrollmentSubmitReq](),
		cmd[PkiEnrollmentInfoReq](),
	),
	KindInvited: table(
		cmd[PingReq](),
		cmd[InviteInfoReq](),
		cmd[Invite1ClaimerWaitPeerReq](),
		cmd[Invite2aClaimerSendHashedNonceReq](),
		cmd[Invite2bClaimerSendNonceReq](),
		cmd[Invite3aClaimerSignifyTrustReq](),
		cmd[Invite3bClaimerWaitPeerTrustReq](),
		cmd[Invite4ClaimerCommunicateReq](),
	),
	KindAuthenticated: table(
		cmd[PingReq](),
		cmdRange[EventsListenReq](0, FirstSSEMajor-1),
		cmdRange[EventsSubscribeReq](0, FirstSSEMajor-1),
		cmdRange[CertificateGetReq](FirstSSEMajor, 0),
		cmd[MessageGetReq](),
		cmd[UserGetReq](),
		cmd[UserCreateReq](),
		cmd[UserRevokeReq](),
		cmd[DeviceCreateReq](),
		cmd[HumanFindReq](),
		cmd[InviteNewReq](),
		cmd[InviteDeleteReq](),
		cmd[InviteListReq](),
		cmd[Invite1GreeterWaitPeerReq](),
		cmd[Invite2aGreeterGetHashedNonceReq](),
		cmd[Invite2bGreeterSendNonceReq](),
		cmd[Invite3aGreeterWaitPeerTrustReq](),
		cmd[Invite3bGreeterSignifyTrustReq](),
		cmd[Invite4GreeterCommunicateReq](),
		cmd[RealmCreateReq](),
		cmd[RealmStatusReq](),
		cmd[RealmStatsReq](),
		cmd[RealmGetRoleCertificatesReq](),
		cmd[RealmUpdateRolesReq](),
		cmd[RealmStartReencryptionMaintenanceReq](),
		cmd[RealmFinishReencryptionMaintenanceReq](),
		cmd[VlobCreateReq](),
		cmd[VlobReadReq](),
		cmd[VlobUpdateReq](),
		cmd[VlobPollChangesReq](),
		cmd[VlobListVersionsReq](),
		cmd[VlobMaintenanceGetReencryptionBatchReq](),
		cmd[VlobMaintenanceSaveReencryptionBatchReq](),
		cmd[BlockCreateReq](),
		cmd[BlockReadReq](),
		cmd[OrganizationStatsReq](),
		cmd[OrganizationConfigReq](),
		cmd[PkiEnrollmentListReq](),
		cmd[PkiEnrollmentRejectReq](),
		cmd[PkiEnrollmentAcceptReq](),
	),
}

// LoadReq decodes raw into the request type registered for its "cmd" field,
// honouring the commands available in version.
func LoadReq(kind ConnectionKind, version APIVersion, raw []byte) (Req, error) {
	var head struct {
		Cmd string `msgpack:"cmd"`
	}
	if err := msgpack.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMsgFormat, err)
	}
	c, ok := commands[kind][head.Cmd]
	if !ok || !c.availableIn(version) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, head.Cmd)
	}
	req := c.new()
	if err := msgpack.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMsgFormat, err)
	}
	return req, nil
}

// DumpReq encodes a request with its "cmd" field, as a client would.
func DumpReq(req Req) ([]byte, error) {
	raw, err := msgpack.Marshal(req)
	if err != nil {
		return nil, err
	}
	fields := map[string]msgpack.RawMessage{}
	if err := msgpack.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	cmdRaw, err := msgpack.Marshal(req.Cmd())
	if err != nil {
		return nil, err
	}
	fields["cmd"] = cmdRaw
	return msgpack.Marshal(fields)
}

// DumpRep encodes a reply.
func DumpRep(rep any) ([]byte, error) {
	return msgpack.Marshal(rep)
}

// LoadRep decodes a reply into out.
func LoadRep(raw []byte, out any) error {
	return msgpack.Unmarshal(raw, out)
}

// Commands returns the command names available for kind in version.
func Commands(kind ConnectionKind, version APIVersion) []string {
	var names []string
	for name, c := range commands[kind] {
		if c.availableIn(version) {
			names = append(names, name)
		}
	}
	return names
}
