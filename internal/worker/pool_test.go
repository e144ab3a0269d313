package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimly/catalog-optimizer/internal/optimizer/domain"
)

func TestShouldRequeueJob(t *testing.T) {
	w := &Worker{}

	tests := []struct {
		name    string
		err     error
		requeue bool
	}{
		{
			name:    "retryable errors are requeued",
			err:     domain.NewRetryableError(errors.New("database connection lost")),
			requeue: true,
		},
		{
			name:    "wrapped retryable errors are requeued",
			err:     domain.NewRetryableError(domain.ErrInvalidPayload),
			requeue: true,
		},
		{
			name:    "unknown job ids are dropped",
			err:     domain.ErrJobNotFound,
			requeue: false,
		},
		{
			name:    "plain errors are dropped",
			err:     errors.New("something unexpected"),
			requeue: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.requeue, w.shouldRequeueJob(tt.err))
		})
	}
}
