package requester_test

import (
	"testing"

	"github.com/pilab-dev/frigg/requester"
	"github.com/stretchr/testify/assert"
)

func TestEncodeURIComponent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"simple", "simple"},
		{"a b", "a%20b"},
		{"contacts oauth", "contacts%20oauth"},
		{"https://example.com/cb?x=1", "https%3A%2F%2Fexample.com%2Fcb%3Fx%3D1"},
		{"it's (ok)*!", "it's%20(ok)*!"},
		{"a+b", "a%2Bb"},
		{"~-_.", "~-_."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requester.EncodeURIComponent(tt.in), tt.in)
	}
}

func TestBuildURL_KeepsInsertionOrder(t *testing.T) {
	q := requester.NewQuery().
		Add("client_id", "id").
		Add("redirect_uri", "http://localhost:3000/redirect").
		AddNonEmpty("state", "").
		Add("scope", "a b")

	got := requester.BuildURL("https://provider.test/authorize", q)
	assert.Equal(t, "https://provider.test/authorize?client_id=id&redirect_uri=http%3A%2F%2Flocalhost%3A3000%2Fredirect&scope=a%20b", got)

	assert.Equal(t, "https://provider.test/authorize?x=1&y=2",
		requester.BuildURL("https://provider.test/authorize?x=1", requester.NewQuery().Add("y", "2")))
	assert.Equal(t, "https://provider.test", requester.BuildURL("https://provider.test", requester.NewQuery()))
}
