package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketURL(t *testing.T) {
	u, err := socketURL("http://127.0.0.1:8080/", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/ws?token=abc", u)

	u, err = socketURL("https://chat.example/base", "a b")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example/base/ws?token=a+b", u)
}
