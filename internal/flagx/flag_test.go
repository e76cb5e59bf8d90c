package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	allowed := []string{"-blockstore", "-port", "-debug"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "separate value",
			args: []string{"-port", "6777", "-x", "1"},
			want: []string{"-port", "6777"},
		},
		{
			name: "equals form",
			args: []string{"-blockstore=raid1:0:MOCKED,raid1:1:MOCKED", "-x=1"},
			want: []string{"-blockstore=raid1:0:MOCKED,raid1:1:MOCKED"},
		},
		{
			name: "boolean followed by another flag",
			args: []string{"-debug", "-port", "1"},
			want: []string{"-debug", "-port", "1"},
		},
		{
			name: "trailing flag without value",
			args: []string{"-port"},
			want: []string{"-port"},
		},
		{
			name: "positional arguments dropped",
			args: []string{"serve", "MOCKED", "-debug"},
			want: []string{"-debug"},
		},
		{
			name: "repeated flag kept in order",
			args: []string{"-port", "1", "-port", "2"},
			want: []string{"-port", "1", "-port", "2"},
		},
		{
			name: "empty",
			args: nil,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, allowed))
		})
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "short", args: []string{"-c", "/etc/parsec.json"}, want: "/etc/parsec.json"},
		{name: "long with equals", args: []string{"--config=/etc/parsec.json"}, want: "/etc/parsec.json"},
		{name: "mixed with server flags", args: []string{"-port", "1", "-config", "a.json", "-debug"}, want: "a.json"},
		{name: "last wins", args: []string{"-c", "1.json", "-config", "2.json"}, want: "2.json"},
		{name: "absent", args: []string{"-port", "1"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigPath(tt.args))
		})
	}
}
