package netfail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), KindTimeout},
		{"os deadline", &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, KindTimeout},
		{"refused", &net.OpError{Op: "dial", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}}, KindConnectionRefused},
		{"other", errors.New("broken pipe"), KindTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("state.get", tc.err)
			classified, ok := As(err)
			require.True(t, ok)
			assert.Equal(t, tc.want, classified.Kind)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestClassifyKeepsExistingClassification(t *testing.T) {
	original := HTTPStatus("profile", 502)
	err := Classify("outer", fmt.Errorf("wrapped: %w", original))

	classified, ok := As(err)
	require.True(t, ok)
	assert.Same(t, original, classified)
	assert.Equal(t, "profile: http_status 502", classified.Error())
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, Classify("noop", nil))
}
