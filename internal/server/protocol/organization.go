package protocol

type OrganizationBootstrapReq struct {
	BootstrapToken                string `msgpack:"bootstrap_token"`
	RootVerifyKey                 []byte `msgpack:"root_verify_key"`
	UserCertificate               []byte `msgpack:"user_certificate"`
	DeviceCertificate             []byte `msgpack:"device_certificate"`
	RedactedUserCertificate       []byte `msgpack:"redacted_user_certificate"`
	RedactedDeviceCertificate     []byte `msgpack:"redacted_device_certificate"`
	SequesterAuthorityCertificate []byte `msgpack:"sequester_authority_certificate,omitempty"`
}

func (OrganizationBootstrapReq) Cmd() string { return "organization_bootstrap" }

type OrganizationStatsReq struct{}

func (OrganizationStatsReq) Cmd() string { return "organization_stats" }

type UsersPerProfileDetailItem struct {
	Profile string `msgpack:"profile"`
	Active  int    `msgpack:"active"`
	Revoked int    `msgpack:"revoked"`
}

type OrganizationStatsRep struct {
	Status                string                      `msgpack:"status"`
	DataSize              int64                       `msgpack:"data_size"`
	MetadataSize          int64                       `msgpack:"metadata_size"`
	Realms                int                         `msgpack:"realms"`
	Users                 int                         `msgpack:"users"`
	ActiveUsers           int                         `msgpack:"active_users"`
	UsersPerProfileDetail []UsersPerProfileDetailItem `msgpack:"users_per_profile_detail"`
}

type OrganizationConfigReq struct{}

func (OrganizationConfigReq) Cmd() string { return "organization_config" }

type OrganizationConfigRep struct {
	Status                        string   `msgpack:"status"`
	UserProfileOutsiderAllowed    bool     `msgpack:"user_profile_outsider_allowed"`
	ActiveUsersLimit              *int64   `msgpack:"active_users_limit"`
	SequesterAuthorityCertificate []byte   `msgpack:"sequester_authority_certificate"`
	SequesterServicesCertificates [][]byte `msgpack:"sequester_services_certificates"`
}
