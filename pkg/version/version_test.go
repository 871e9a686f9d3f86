package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	s := String()
	assert.Contains(t, s, "resmon version "+Version)
	assert.Contains(t, s, "Go version: "+GoVersion)
}
