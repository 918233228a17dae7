package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewReturnsLoggerAndError(t *testing.T) {
	for _, development := range []bool{true, false} {
		log, err := New(development)
		require.NoError(t, err)
		require.NotNil(t, log)
		log.Sync()
	}
}
