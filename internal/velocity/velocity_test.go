package velocity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlags(t *testing.T) {
	t.Run("RepeatedCard", func(t *testing.T) {
		flags := Flags([]string{"C1", "C2", "C1", "C1"})
		assert.Equal(t, []string{HighVelocity, "", HighVelocity, HighVelocity}, flags)
	})

	t.Run("AllUnique", func(t *testing.T) {
		flags := Flags([]string{"A", "B", "C"})
		assert.Equal(t, []string{"", "", ""}, flags)
	})

	t.Run("EmptyIDsIgnored", func(t *testing.T) {
		flags := Flags([]string{"", " ", "", "X"})
		assert.Equal(t, []string{"", "", "", ""}, flags)
	})

	t.Run("WhitespaceTrimmed", func(t *testing.T) {
		flags := Flags([]string{"C9 ", " C9"})
		assert.Equal(t, []string{HighVelocity, HighVelocity}, flags)
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		assert.Empty(t, Flags(nil))
	})
}

func TestCounter_MinRepeats(t *testing.T) {
	c := NewCounter(3)
	flags := c.Flags([]string{"C1", "C1", "C2", "C2", "C2"})
	assert.Equal(t, []string{"", "", HighVelocity, HighVelocity, HighVelocity}, flags)

	assert.Equal(t, 2, NewCounter(0).MinRepeats)
}
