package camunda

import (
	"errors"
	"testing"
	"time"

	"github-insight/internal/common/config"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("rpc error: code = Unavailable desc = connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("rpc error: code = PermissionDenied"), false},
		{errors.New("job not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableZeebeError(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	rc := &RetryConfig{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, time.Second, backoff(rc, 0))
	assert.Equal(t, 2*time.Second, backoff(rc, 1))
	assert.Equal(t, 8*time.Second, backoff(rc, 3))
	assert.Equal(t, 10*time.Second, backoff(rc, 4))
	assert.Equal(t, 10*time.Second, backoff(rc, 62))
}

func TestConfigFrom(t *testing.T) {
	cc := ConfigFrom(config.CamundaConfig{
		BrokerAddress:  "zeebe:26500",
		RequestTimeout: 5000,
	})

	assert.Equal(t, "zeebe:26500", cc.GatewayAddress)
	assert.True(t, cc.UsePlaintextConnection)
	assert.Equal(t, 5*time.Second, cc.ConnectionTimeout)
	assert.Same(t, DefaultRetryConfig, cc.RetryConfig)
}
