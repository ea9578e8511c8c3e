package avatar

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdenticon_Deterministic(t *testing.T) {
	a := Identicon("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", 100)
	b := Identicon("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", 100)
	c := Identicon("HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH", 100)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "<svg"))
	assert.True(t, strings.HasSuffix(a, "</svg>"))
	assert.Contains(t, a, `width="100"`)
}

func TestIdenticon_DefaultSize(t *testing.T) {
	assert.Equal(t, Identicon("seed", DefaultSize), Identicon("seed", 0))
}

func TestIdenticonURL(t *testing.T) {
	url := IdenticonURL("seed", 64)
	require.True(t, strings.HasPrefix(url, "data:image/svg+xml;base64,"))

	svg, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	assert.Equal(t, Identicon("seed", 64), string(svg))
}

func TestStaticPlaceholder(t *testing.T) {
	svg, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(StaticPlaceholder, "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg), "<svg"))
}
