package testutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMockErrorsAreDistinct(t *testing.T) {
	all := []error{ErrMockJira, ErrMockSearch, ErrMockTimerStore, ErrMockDBUnreachable, ErrMockRemote}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}

func TestMockErrorsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("processing MFG-1: %w", ErrMockJira)
	assert.True(t, errors.Is(wrapped, ErrMockJira))
	assert.False(t, errors.Is(wrapped, ErrMockSearch))
}
