package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var stubFlags = []string{"-a", "-k", "-m", "-l"}

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "separate values",
			args: []string{"-a", ":9000", "-k", "secret"},
			want: []string{"-a", ":9000", "-k", "secret"},
		},
		{
			name: "equals form",
			args: []string{"-m=500", "-l=debug"},
			want: []string{"-m=500", "-l=debug"},
		},
		{
			name: "config flags belong to another loader",
			args: []string{"-c", "stub.json", "-a", ":9000"},
			want: []string{"-a", ":9000"},
		},
		{
			name: "empty value kept so validation can reject it",
			args: []string{"-k="},
			want: []string{"-k="},
		},
		{
			name: "flag at the end keeps no value",
			args: []string{"-l"},
			want: []string{"-l"},
		},
		{
			name: "next dash token is not a value",
			args: []string{"-k", "-m", "7"},
			want: []string{"-k", "-m", "7"},
		},
		{
			name: "repeats preserved in order",
			args: []string{"-l", "info", "-x", "1", "-l", "warn"},
			want: []string{"-l", "info", "-l", "warn"},
		},
		{
			name: "nothing owned",
			args: []string{"-x", "1", "--y=2", "positional"},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, stubFlags))
		})
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "short -c", args: []string{"-c", "/path/short.json"}, want: "/path/short.json"},
		{name: "long -config", args: []string{"-config", "/path/long.json"}, want: "/path/long.json"},
		{name: "double dash with equals", args: []string{"--config=/path/gnu.json", "login"}, want: "/path/gnu.json"},
		{name: "unknown flags ignored", args: []string{"-x", "1", "-y", "2"}, want: ""},
		{name: "last wins", args: []string{"-c", "/path/1.json", "-config", "/path/2.json"}, want: "/path/2.json"},
		{name: "mixed with subcommand flags", args: []string{"cart", "add", "--sku", "s1", "-c", "cfg.json"}, want: "cfg.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigPath(tt.args))
		})
	}
}
