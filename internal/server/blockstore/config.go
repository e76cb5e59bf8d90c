package blockstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Scille/parsec-cloud-sub009/internal/logging"
)

type Type string

const (
	TypeMocked     Type = "MOCKED"
	TypePostgreSQL Type = "POSTGRESQL"
	TypeS3         Type = "S3"
	TypeSwift      Type = "SWIFT"
	TypeRAID0      Type = "RAID0"
	TypeRAID1      Type = "RAID1"
	TypeRAID5      Type = "RAID5"
)

// Config describes a blockstore. RAID types list their nodes in Nodes.
type Config struct {
	Type            Type         `json:"type"`
	S3              *S3Config    `json:"s3,omitempty"`
	Swift           *SwiftConfig `json:"swift,omitempty"`
	Nodes           []Config     `json:"nodes,omitempty"`
	PartialCreateOK bool         `json:"partial_create_ok,omitempty"`
}

// splitEscaped cuts s on ':' except where it is escaped as `\:`.
func splitEscaped(s string) []string {
	var (
		parts []string
		cur   strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == ':':
			cur.WriteByte(':')
			i++
		case s[i] == ':':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(s[i])
		}
	}
	return append(parts, cur.String())
}

func parseSingle(spec string) (Config, error) {
	if strings.EqualFold(spec, string(TypeMocked)) {
		return Config{Type: TypeMocked}, nil
	}
	if strings.EqualFold(spec, string(TypePostgreSQL)) {
		return Config{Type: TypePostgreSQL}, nil
	}

	parts := splitEscaped(spec)
	switch strings.ToLower(parts[0]) {
	case "s3":
		// s3:[<endpoint>:]<region>:<bucket>:<key>:<secret>
		var c S3Config
		switch len(parts) {
		case 5:
			c = S3Config{Region: parts[1], Bucket: parts[2], Key: parts[3], Secret: parts[4]}
		case 6:
			c = S3Config{Endpoint: parts[1], Region: parts[2], Bucket: parts[3], Key: parts[4], Secret: parts[5]}
		default:
			return Config{}, fmt.Errorf("invalid s3 blockstore %q", spec)
		}
		return Config{Type: TypeS3, S3: &c}, nil
	case "swift":
		// swift:<auth_url>:<tenant>:<container>:<user>:<password>
		if len(parts) != 6 {
			return Config{}, fmt.Errorf("invalid swift blockstore %q", spec)
		}
		return Config{Type: TypeSwift, Swift: &SwiftConfig{
			AuthURL: parts[1], Tenant: parts[2], Container: parts[3], User: parts[4], Password: parts[5],
		}}, nil
	}
	return Config{}, fmt.Errorf("unknown blockstore %q", spec)
}

// ParseConfig builds a Config from command line specs. A single spec is one
// of MOCKED, POSTGRESQL, s3:... or swift:...; RAID arrays are given as one
// spec per node, `<raid0|raid1|raid5>:<node index>:<node spec>`.
func ParseConfig(specs []string) (Config, error) {
	if len(specs) == 0 {
		return Config{}, fmt.Errorf("no blockstore configured")
	}

	mode, _, _ := strings.Cut(specs[0], ":")
	mode = strings.ToUpper(mode)
	if mode != string(TypeRAID0) && mode != string(TypeRAID1) && mode != string(TypeRAID5) {
		if len(specs) != 1 {
			return Config{}, fmt.Errorf("multiple blockstores require a raid mode")
		}
		return parseSingle(specs[0])
	}

	nodes := make(map[int]Config)
	for _, spec := range specs {
		m, rest, _ := strings.Cut(spec, ":")
		if strings.ToUpper(m) != mode {
			return Config{}, fmt.Errorf("mixed raid modes in blockstore config")
		}
		idxText, nodeSpec, ok := strings.Cut(rest, ":")
		if !ok {
			return Config{}, fmt.Errorf("invalid raid node %q", spec)
		}
		idx, err := strconv.Atoi(idxText)
		if err != nil || idx < 0 {
			return Config{}, fmt.Errorf("invalid raid node index in %q", spec)
		}
		if _, dup := nodes[idx]; dup {
			return Config{}, fmt.Errorf("duplicated raid node index %d", idx)
		}
		node, err := parseSingle(nodeSpec)
		if err != nil {
			return Config{}, err
		}
		nodes[idx] = node
	}

	indexes := make([]int, 0, len(nodes))
	for idx := range nodes {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	cfg := Config{Type: Type(mode)}
	for i, idx := range indexes {
		if i != idx {
			return Config{}, fmt.Errorf("missing raid node %d", i)
		}
		cfg.Nodes = append(cfg.Nodes, nodes[idx])
	}
	if cfg.Type == TypeRAID5 && len(cfg.Nodes) < 3 {
		return Config{}, fmt.Errorf("raid5 needs at least 3 nodes")
	}
	return cfg, nil
}

// UnmarshalText parses whitespace or comma separated specs, so the config
// can come from an environment variable or a flag.
func (c *Config) UnmarshalText(text []byte) error {
	specs := strings.FieldsFunc(string(text), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	parsed, err := ParseConfig(specs)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalJSON accepts either the object form or a string of specs.
func (c *Config) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		return c.UnmarshalText([]byte(text))
	}
	type plain Config
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = Config(p)
	return nil
}

// New builds the blockstore described by cfg. db backs the POSTGRESQL type
// and may be nil otherwise.
func New(ctx context.Context, cfg Config, db *sql.DB, logger logging.Logger) (Blockstore, error) {
	switch cfg.Type {
	case TypeMocked:
		return NewMemoryBlockstore(), nil
	case TypePostgreSQL:
		if db == nil {
			return nil, fmt.Errorf("POSTGRESQL blockstore requires a postgres database")
		}
		return NewPostgresBlockstore(db), nil
	case TypeS3:
		if cfg.S3 == nil {
			return nil, fmt.Errorf("s3 blockstore without s3 config")
		}
		return NewS3Blockstore(ctx, *cfg.S3)
	case TypeSwift:
		if cfg.Swift == nil {
			return nil, fmt.Errorf("swift blockstore without swift config")
		}
		return NewSwiftBlockstore(ctx, *cfg.Swift)
	case TypeRAID0, TypeRAID1, TypeRAID5:
		nodes := make([]Blockstore, 0, len(cfg.Nodes))
		for i, n := range cfg.Nodes {
			node, err := New(ctx, n, db, logger)
			if err != nil {
				return nil, fmt.Errorf("raid node %d: %w", i, err)
			}
			nodes = append(nodes, node)
		}
		if len(nodes) == 0 {
			return nil, fmt.Errorf("%s blockstore without nodes", cfg.Type)
		}
		logger = logger.With("blockstore", strings.ToLower(string(cfg.Type)))
		switch cfg.Type {
		case TypeRAID0:
			return NewRAID0Blockstore(nodes), nil
		case TypeRAID1:
			return NewRAID1Blockstore(nodes, cfg.PartialCreateOK, logger), nil
		default:
			return NewRAID5Blockstore(nodes, cfg.PartialCreateOK, logger)
		}
	}
	return nil, fmt.Errorf("unknown blockstore type %q", cfg.Type)
}
