package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestKeyPrefixing(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{"no prefix", "", "abc", "abc"},
		{"plain prefix", "cache", "abc", "cache/abc"},
		{"prefix slashes trimmed", "/cache/", "abc", "cache/abc"},
		{"nested key", "cache", "multipart/s1/part_00001", "cache/multipart/s1/part_00001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(context.Background(), Config{Bucket: "b", Region: "us-east-1", Prefix: tt.prefix})
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.key(tt.key))
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"throttling", &smithy.GenericAPIError{Code: "SlowDown"}, true},
		{"internal error", &smithy.GenericAPIError{Code: "InternalError"}, true},
		{"service unavailable", &smithy.GenericAPIError{Code: "ServiceUnavailable"}, true},
		{"not found", &smithy.GenericAPIError{Code: "NoSuchKey"}, false},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"invalid range", &smithy.GenericAPIError{Code: "InvalidRange"}, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"io timeout", errors.New("read tcp: i/o timeout"), true},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed no such key", &types.NoSuchKey{}, true},
		{"typed not found", &types.NotFound{}, true},
		{"api code", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"wrapped", fmt.Errorf("get: %w", &types.NoSuchKey{}), true},
		{"status in message", errors.New("operation error S3: GetObject, StatusCode: 404"), true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFoundError(tt.err))
		})
	}
}

func TestIsInvalidRangeError(t *testing.T) {
	assert.True(t, isInvalidRangeError(&smithy.GenericAPIError{Code: "InvalidRange"}))
	assert.False(t, isInvalidRangeError(errors.New("boom")))
	assert.False(t, isInvalidRangeError(nil))
}

func TestRetryBackoffCapped(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, retryBackoff(0))
	assert.Equal(t, time.Second, retryBackoff(1))
	assert.Equal(t, 8*time.Second, retryBackoff(10))
}
