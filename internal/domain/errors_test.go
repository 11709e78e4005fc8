package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	cause := errors.New("disk full")
	testCases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "plain error", err: cause, want: ErrorCodeUnknown},
		{name: "nil", err: nil, want: ErrorCodeUnknown},
		{name: "coded", err: Newf(ErrorCodeNoData, "nothing"), want: ErrorCodeNoData},
		{name: "wrapped coded", err: fmt.Errorf("run: %w", Wrapf(cause, ErrorCodeCacheIO, "write")), want: ErrorCodeCacheIO},
		{name: "repository failure", err: &RepositoryFetchError{Repository: "api", Reason: "404"}, want: ErrorCodeRepositoryFetch},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CodeOf(tc.err))
		})
	}
}

func TestError_Messages(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrapf(cause, ErrorCodeCacheIO, "write entry %d", 3)
	assert.Equal(t, "write entry 3: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(err, ErrorCodeCacheIO))
	assert.Equal(t, "cache_io", ErrorCodeCacheIO.String())

	rf := &RepositoryFetchError{Repository: "api", Reason: "stats not ready", Err: ErrStatsNotReady}
	assert.Equal(t, "api: stats not ready: stats not ready", rf.Error())
	assert.ErrorIs(t, rf, ErrStatsNotReady)
	assert.Equal(t, "api: 404", (&RepositoryFetchError{Repository: "api", Reason: "404"}).Error())
}
