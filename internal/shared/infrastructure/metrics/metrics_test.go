package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("boom")))
	assert.Equal(t, "error", Result(context.Canceled))
}

func TestUnreadGauge(t *testing.T) {
	UnreadNotifications.Set(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(UnreadNotifications))
}
