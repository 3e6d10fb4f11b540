package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAgainstSchemaNoConstraint(t *testing.T) {
	assert.NoError(t, validateAgainstSchema(nil, []byte(`{"anything":1}`)))
	assert.NoError(t, validateAgainstSchema([]byte(""), []byte(`{"anything":1}`)))
	assert.NoError(t, validateAgainstSchema([]byte("null"), []byte(`{"anything":1}`)))
	assert.NoError(t, validateAgainstSchema([]byte("{}"), []byte(`{"anything":1}`)))
}

func TestValidateAgainstSchemaPasses(t *testing.T) {
	schema := []byte(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`)
	assert.NoError(t, validateAgainstSchema(schema, []byte(`{"name":"ok"}`)))
}

func TestValidateAgainstSchemaFails(t *testing.T) {
	schema := []byte(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`)
	err := validateAgainstSchema(schema, []byte(`{"name":123}`))
	assert.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestValidateAgainstSchemaInvalidPayload(t *testing.T) {
	schema := []byte(`{"type":"object"}`)
	err := validateAgainstSchema(schema, []byte("not json"))
	assert.ErrorIs(t, err, ErrSchemaInvalid)
}
