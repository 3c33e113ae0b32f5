package hash

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRecord_Stable(t *testing.T) {
	record := map[string]interface{}{
		"command": "npx",
		"args":    []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"},
		"env":     map[string]string{"DEBUG": "1"},
	}

	hash1, err := Record(record)
	require.NoError(t, err)
	assert.Len(t, hash1, recordHashLen)

	hash2, err := Record(record)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)
}

func TestRecord_KeyOrderIndependent(t *testing.T) {
	var a, b interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"command":"uvx","args":["server"],"env":{"A":"1","B":"2"}}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"env":{"B":"2","A":"1"},"args":["server"],"command":"uvx"}`), &b))

	hashA, err := Record(a)
	require.NoError(t, err)
	hashB, err := Record(b)
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB, "key order must not affect the hash")
}

func TestRecord_ValueSensitive(t *testing.T) {
	tests := []struct {
		name string
		a    map[string]interface{}
		b    map[string]interface{}
	}{
		{
			name: "command changed",
			a:    map[string]interface{}{"command": "npx", "args": []string{"x"}},
			b:    map[string]interface{}{"command": "uvx", "args": []string{"x"}},
		},
		{
			name: "arg appended",
			a:    map[string]interface{}{"command": "npx", "args": []string{"x"}},
			b:    map[string]interface{}{"command": "npx", "args": []string{"x", "y"}},
		},
		{
			name: "env value changed",
			a:    map[string]interface{}{"command": "npx", "env": map[string]string{"K": "1"}},
			b:    map[string]interface{}{"command": "npx", "env": map[string]string{"K": "2"}},
		},
		{
			name: "url changed",
			a:    map[string]interface{}{"url": "https://one.example/mcp"},
			b:    map[string]interface{}{"url": "https://two.example/mcp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashA, err := Record(tt.a)
			require.NoError(t, err)
			hashB, err := Record(tt.b)
			require.NoError(t, err)
			assert.NotEqual(t, hashA, hashB)
		})
	}
}

func TestRecord_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 1, 6, rapid.ID[string]).Draw(t, "keys")
		record := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			record[k] = rapid.String().Draw(t, "value-"+k)
		}

		hash1, err := Record(record)
		require.NoError(t, err)
		hash2, err := Record(record)
		require.NoError(t, err)
		assert.Equal(t, hash1, hash2)
		assert.Len(t, hash1, recordHashLen)
	})
}

func TestStringHash(t *testing.T) {
	h := StringHash("hello")
	assert.Len(t, h, 64)
	assert.Equal(t, h, StringHash("hello"))
	assert.NotEqual(t, h, StringHash("hellp"))
}
