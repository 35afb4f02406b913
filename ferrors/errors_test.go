package ferrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetriable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{TransportError, true},
		{ConfigError, false},
		{InputDataError, false},
		{IntegrityError, false},
		{ModelError, false},
		{StageDependencyError, false},
		{Cancelled, false},
	}
	for _, c := range cases {
		if got := c.kind.Retriable(); got != c.want {
			t.Errorf("%s.Retriable() = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestAborting(t *testing.T) {
	assert.True(t, ConfigError.Aborting())
	assert.True(t, IntegrityError.Aborting())
	assert.False(t, TransportError.Aborting())
	assert.False(t, ModelError.Aborting())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, ConfigError.ExitCode())
	assert.Equal(t, 3, TransportError.ExitCode())
	assert.Equal(t, 4, IntegrityError.ExitCode())
	assert.Equal(t, 4, InputDataError.ExitCode())
	assert.Equal(t, 5, Cancelled.ExitCode())
}

func TestWrapAndUnwrap(t *testing.T) {
	base := errors.New("dial tcp: timeout")
	err := New(TransportError, "2021-03", base)

	assert.Equal(t, "TransportError[2021-03]: dial tcp: timeout", err.Error())
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, TransportError, KindOf(err))
	assert.True(t, Retriable(err))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, InputDataError, KindOf(errors.New("boom")))
	assert.False(t, Retriable(errors.New("boom")))
}
