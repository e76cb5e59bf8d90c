package protocol

import "github.com/google/uuid"

type BlockCreateReq struct {
	BlockID uuid.UUID `msgpack:"block_id"`
	RealmID uuid.UUID `msgpack:"realm_id"`
	Block   []byte    `msgpack:"block"`
}

func (BlockCreateReq) Cmd() string { return "block_create" }

type BlockReadReq struct {
	BlockID uuid.UUID `msgpack:"block_id"`
}

func (BlockReadReq) Cmd() string { return "block_read" }

type BlockReadRep struct {
	Status string `msgpack:"status"`
	Block  []byte `msgpack:"block"`
}
