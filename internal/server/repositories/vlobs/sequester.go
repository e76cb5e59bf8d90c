package vlobs

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

func encodeSequesterBlob(blob map[uuid.UUID][]byte) ([]byte, error) {
	if blob == nil {
		return nil, nil
	}
	m := make(map[string][]byte, len(blob))
	for id, b := range blob {
		m[id.String()] = b
	}
	return msgpack.Marshal(m)
}

func decodeSequesterBlob(raw []byte) (map[uuid.UUID][]byte, error) {
	if raw == nil {
		return nil, nil
	}
	var m map[string][]byte
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode sequester blob: %w", err)
	}
	out := make(map[uuid.UUID][]byte, len(m))
	for k, b := range m {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("decode sequester blob: %w", err)
		}
		out[id] = b
	}
	return out, nil
}
