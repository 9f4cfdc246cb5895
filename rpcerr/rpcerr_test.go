package rpcerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassesAreDistinct(t *testing.T) {
	conn := ConnectionError.New("dial refused")
	timeout := TimeoutError.New("no reply after %s", "10s")
	domain := DomainError.Wrap(ErrNoValue)

	assert.True(t, IsConnection(conn))
	assert.False(t, IsTimeout(conn))
	assert.True(t, IsTimeout(timeout))
	assert.False(t, IsConnection(timeout))
	assert.True(t, IsDomain(domain))
	assert.False(t, IsConnection(domain))
	assert.True(t, errors.Is(domain, ErrNoValue))
}

func TestClassSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("users.login: %w", ParseError.New("field email"))
	assert.True(t, IsParse(err))
	assert.Equal(t, "parse", Kind(err))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(TimeoutError.New("x")))
	assert.True(t, Retryable(ConnectionError.Wrap(context.DeadlineExceeded)))
	assert.False(t, Retryable(DomainError.Wrap(ErrNoValue)))
	assert.False(t, Retryable(ParseError.New("x")))
	assert.False(t, Retryable(nil))
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "throttled", Kind(ThrottledError.New("x")))
	assert.Equal(t, "route", Kind(RouteError.New("x")))
	assert.Equal(t, "other", Kind(errors.New("x")))
}
