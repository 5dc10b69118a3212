package bridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeResize(t *testing.T) {
	assert.Equal(t, "__RESIZE__:80:24\n", string(EncodeResize(80, 24)))
	assert.Equal(t, "__RESIZE__:500:200\n", string(EncodeResize(500, 200)))
}

func TestSizeValid(t *testing.T) {
	tests := []struct {
		name string
		size Size
		want bool
	}{
		{"minimum", Size{2, 2}, true},
		{"maximum", Size{500, 200}, true},
		{"typical", Size{80, 24}, true},
		{"cols too small", Size{1, 24}, false},
		{"rows too small", Size{80, 1}, false},
		{"cols too large", Size{501, 24}, false},
		{"rows too large", Size{80, 201}, false},
		{"negative", Size{-80, 24}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.size.Valid())
		})
	}
}

func TestDemuxPassthrough(t *testing.T) {
	var d Demux

	out, sizes := d.Feed([]byte("ls -la\n"))
	assert.Equal(t, "ls -la\n", string(out))
	assert.Empty(t, sizes)
	assert.False(t, d.Pending())
}

func TestDemuxExtractsCommand(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOut   string
		wantSizes []Size
	}{
		{
			name:      "command alone",
			input:     "__RESIZE__:120:40\n",
			wantOut:   "",
			wantSizes: []Size{{120, 40}},
		},
		{
			name:      "command between keystrokes",
			input:     "echo a\n__RESIZE__:100:30\necho b\n",
			wantOut:   "echo a\necho b\n",
			wantSizes: []Size{{100, 30}},
		},
		{
			name:      "two commands",
			input:     "__RESIZE__:10:10\nx__RESIZE__:20:20\n",
			wantOut:   "x",
			wantSizes: []Size{{10, 10}, {20, 20}},
		},
		{
			name:      "out of range is dropped",
			input:     "a__RESIZE__:1:24\nb",
			wantOut:   "ab",
			wantSizes: nil,
		},
		{
			name:      "malformed payload is dropped",
			input:     "a__RESIZE__:wide:tall\nb",
			wantOut:   "ab",
			wantSizes: nil,
		},
		{
			name:      "missing separator is dropped",
			input:     "__RESIZE__:8024\nb",
			wantOut:   "b",
			wantSizes: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Demux
			out, sizes := d.Feed([]byte(tt.input))
			assert.Equal(t, tt.wantOut, string(out))
			assert.Equal(t, tt.wantSizes, sizes)
			assert.False(t, d.Pending())
		})
	}
}

func TestDemuxSplitAcrossReads(t *testing.T) {
	cmd := "echo hi\n__RESIZE__:132:43\nexit\n"

	// Every split point must yield the same result.
	for cut := 0; cut <= len(cmd); cut++ {
		var d Demux
		out1, sizes1 := d.Feed([]byte(cmd[:cut]))
		out2, sizes2 := d.Feed([]byte(cmd[cut:]))

		out := string(out1) + string(out2)
		sizes := append(sizes1, sizes2...)

		require.Equal(t, "echo hi\nexit\n", out, "cut at %d", cut)
		require.Equal(t, []Size{{132, 43}}, sizes, "cut at %d", cut)
		require.False(t, d.Pending(), "cut at %d", cut)
	}
}

func TestDemuxByteAtATime(t *testing.T) {
	input := "a__RESIZE__:90:30\nb_c"
	var d Demux
	var out strings.Builder
	var sizes []Size
	for i := 0; i < len(input); i++ {
		o, s := d.Feed([]byte{input[i]})
		out.Write(o)
		sizes = append(sizes, s...)
	}
	out.Write(d.Flush())

	assert.Equal(t, "ab_c", out.String())
	assert.Equal(t, []Size{{90, 30}}, sizes)
}

func TestDemuxHoldsPartialMarker(t *testing.T) {
	var d Demux

	out, _ := d.Feed([]byte("foo__RES"))
	assert.Equal(t, "foo", string(out))
	assert.True(t, d.Pending())

	// Idle flush releases the held prefix to the shell.
	assert.Equal(t, "__RES", string(d.Flush()))
	assert.False(t, d.Pending())
}

func TestDemuxFlushKeepsStartedCommand(t *testing.T) {
	var d Demux

	out, _ := d.Feed([]byte("__RESIZE__:80:"))
	assert.Empty(t, out)
	assert.Nil(t, d.Flush())
	assert.True(t, d.Pending())

	out, sizes := d.Feed([]byte("24\n"))
	assert.Empty(t, out)
	assert.Equal(t, []Size{{80, 24}}, sizes)
}

func TestDemuxOverlongPayloadPassesThrough(t *testing.T) {
	var d Demux
	text := "__RESIZE__:" + strings.Repeat("x", maxResizePayload+5)

	out, sizes := d.Feed([]byte(text))
	assert.Equal(t, text, string(out))
	assert.Empty(t, sizes)
	assert.False(t, d.Pending())
}

func TestEnvironment(t *testing.T) {
	env := Environment([]string{"PATH=/usr/bin", "TERM=dumb", "HOME=/nowhere"}, "/home/term")

	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "TERM=xterm-256color")
	assert.Contains(t, env, "COLORTERM=truecolor")
	assert.Contains(t, env, "HOME=/home/term")
	assert.Contains(t, env, "CLICOLOR_FORCE=1")
	assert.NotContains(t, env, "TERM=dumb")
	assert.NotContains(t, env, "HOME=/nowhere")
}
