package protocol

import "time"

type MessageGetReq struct {
	Offset uint64 `msgpack:"offset"`
}

func (MessageGetReq) Cmd() string { return "message_get" }

type MessageItem struct {
	Count     uint64    `msgpack:"count"`
	Sender    string    `msgpack:"sender"`
	Timestamp time.Time `msgpack:"timestamp"`
	Body      []byte    `msgpack:"body"`
}

type MessageGetRep struct {
	Status   string        `msgpack:"status"`
	Messages []MessageItem `msgpack:"messages"`
}
