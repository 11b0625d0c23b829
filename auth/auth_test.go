package auth

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuth(t *testing.T) {
	a := New(100, 1, "tok")

	assert.Equal(t, "100_1", a.Login())
	assert.Equal(t, "tok", a.Password())
	assert.Equal(t, int64(1), a.AgentID())
	assert.Equal(t, int64(100), a.ClientID())
}

func TestAuth_StringHidesToken(t *testing.T) {
	a := New(1, 10, "secret")

	assert.Equal(t, "auth{login=1_10}", fmt.Sprint(a))
	assert.NotContains(t, fmt.Sprintf("%v", a), "secret")
}
