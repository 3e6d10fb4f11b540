package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInputEmptyTemplate(t *testing.T) {
	out, err := BuildInput(nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(out))
}

func TestBuildInputResolvesReference(t *testing.T) {
	upstream := map[string]json.RawMessage{
		"fetch": json.RawMessage(`{"status":"ok","items":[1,2,3]}`),
	}
	template := json.RawMessage(`{"input":"$nodes.fetch.output.items","label":"static"}`)

	out, err := BuildInput(template, upstream)
	require.NoError(t, err)
	assert.JSONEq(t, `{"input":[1,2,3],"label":"static"}`, string(out))
}

func TestBuildInputPreservesPlainStrings(t *testing.T) {
	template := json.RawMessage(`{"greeting":"hello"}`)
	out, err := BuildInput(template, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"hello"}`, string(out))
}

func TestBuildInputUnresolvedNode(t *testing.T) {
	template := json.RawMessage(`{"input":"$nodes.missing.output.x"}`)
	_, err := BuildInput(template, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedRef)
}

func TestBuildInputUnresolvedPathSegment(t *testing.T) {
	upstream := map[string]json.RawMessage{
		"fetch": json.RawMessage(`{"status":"ok"}`),
	}
	template := json.RawMessage(`{"input":"$nodes.fetch.output.missing"}`)
	_, err := BuildInput(template, upstream)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedRef)
}

func TestBuildInputWholeOutputReference(t *testing.T) {
	upstream := map[string]json.RawMessage{
		"fetch": json.RawMessage(`{"status":"ok"}`),
	}
	template := json.RawMessage(`"$nodes.fetch.output"`)
	out, err := BuildInput(template, upstream)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(out))
}
