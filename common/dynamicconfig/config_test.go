package dynamicconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zxfishhack/globaltagthrottler/common/log/loggerimpl"
)

func TestGetFloatPropertyFallsBackToDefaultWithoutOverride(t *testing.T) {
	c := NewCollection(NewNopClient(), loggerimpl.NewNopLogger())
	fn := c.GetFloatProperty(MinPerClientRate)
	assert.Equal(t, 1.0, fn())
}

func TestGetFloatPropertyReadsOverride(t *testing.T) {
	client := NewInMemoryClient()
	assert.NoError(t, client.UpdateValue(MinPerClientRate, 3.5))

	c := NewCollection(client, loggerimpl.NewNopLogger())
	fn := c.GetFloatProperty(MinPerClientRate)
	assert.Equal(t, 3.5, fn())
}

func TestGetDurationPropertyFallsBackToDefault(t *testing.T) {
	c := NewCollection(NewNopClient(), loggerimpl.NewNopLogger())
	fn := c.GetDurationProperty(QuotaWatcherInterval)
	assert.Equal(t, 5*time.Second, fn())
}

func TestGetIntPropertyReadsOverride(t *testing.T) {
	client := NewInMemoryClient()
	assert.NoError(t, client.UpdateValue(QuotaWatcherRowCap, 42))

	c := NewCollection(client, loggerimpl.NewNopLogger())
	fn := c.GetIntProperty(QuotaWatcherRowCap)
	assert.Equal(t, 42, fn())
}
