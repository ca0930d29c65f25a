package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternalGetReturnsRequestedLength(t *testing.T) {
	assert := assert.New(t)

	tier := NewInternal()
	buf := tier.Get(128)
	assert.Len(buf, 128)
	assert.Equal(internalBufCap, cap(buf))
	tier.Put(buf)
}

func TestInternalOversizedBypassesPool(t *testing.T) {
	assert := assert.New(t)

	tier := NewInternal()
	buf := tier.Get(internalBufCap + 1)
	assert.Len(buf, internalBufCap+1)
	// foreign-capacity buffers are dropped, not pooled
	assert.NotPanics(func() { tier.Put(buf) })
}

func TestExternalEnforcesLimit(t *testing.T) {
	assert := assert.New(t)

	tier := NewExternal(64)
	assert.Len(tier.Get(64), 64)
	assert.Nil(tier.Get(65))
}

func TestExternalDefaultLimit(t *testing.T) {
	assert := assert.New(t)

	tier := NewExternal(0)
	assert.Len(tier.Get(DefaultExternalLimit), DefaultExternalLimit)
	assert.Nil(tier.Get(DefaultExternalLimit + 1))
}

func TestErrExhaustedNamesTier(t *testing.T) {
	assert := assert.New(t)

	err := ErrExhausted(NewExternal(8), 16)
	assert.EqualError(err, "external memory tier cannot satisfy 16 bytes")
}
