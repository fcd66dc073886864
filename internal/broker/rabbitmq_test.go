package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingKeyFor(t *testing.T) {
	assert.Equal(t, "contact.synced", RoutingKeyFor(true))
	assert.Equal(t, "contact.failed", RoutingKeyFor(false))
}
