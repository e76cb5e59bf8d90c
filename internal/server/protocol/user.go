package protocol

type UserGetReq struct {
	UserID string `msgpack:"user_id"`
}

func (UserGetReq) Cmd() string { return "user_get" }

type Trustchain struct {
	Devices      [][]byte `msgpack:"devices"`
	Users        [][]byte `msgpack:"users"`
	RevokedUsers [][]byte `msgpack:"revoked_users"`
}

type UserGetRep struct {
	Status                 string     `msgpack:"status"`
	UserCertificate        []byte     `msgpack:"user_certificate"`
	RevokedUserCertificate []byte     `msgpack:"revoked_user_certificate"`
	DeviceCertificates     [][]byte   `msgpack:"device_certificates"`
	Trustchain             Trustchain `msgpack:"trustchain"`
}

type UserCreateReq struct {
	UserCertificate           []byte `msgpack:"user_certificate"`
	DeviceCertificate         []byte `msgpack:"device_certificate"`
	RedactedUserCertificate   []byte `msgpack:"redacted_user_certificate"`
	RedactedDeviceCertificate []byte `msgpack:"redacted_device_certificate"`
}

func (UserCreateReq) Cmd() string { return "user_create" }

type UserRevokeReq struct {
	RevokedUserCertificate []byte `msgpack:"revoked_user_certificate"`
}

func (UserRevokeReq) Cmd() string { return "user_revoke" }

type DeviceCreateReq struct {
	DeviceCertificate         []byte `msgpack:"device_certificate"`
	RedactedDeviceCertificate []byte `msgpack:"redacted_device_certificate"`
}

func (DeviceCreateReq) Cmd() string { return "device_create" }

type HumanFindReq struct {
	Query        string `msgpack:"query"`
	OmitRevoked  bool   `msgpack:"omit_revoked"`
	OmitNonHuman bool   `msgpack:"omit_non_human"`
	Page         int    `msgpack:"page"`
	PerPage      int    `msgpack:"per_page"`
}

func (HumanFindReq) Cmd() string { return "human_find" }

type HumanHandle struct {
	Email string `msgpack:"email"`
	Label string `msgpack:"label"`
}

type HumanFindItem struct {
	UserID      string       `msgpack:"user_id"`
	HumanHandle *HumanHandle `msgpack:"human_handle"`
	Revoked     bool         `msgpack:"revoked"`
}

type HumanFindRep struct {
	Status  string          `msgpack:"status"`
	Results []HumanFindItem `msgpack:"results"`
	Page    int             `msgpack:"page"`
	PerPage int             `msgpack:"per_page"`
	Total   int             `msgpack:"total"`
}
