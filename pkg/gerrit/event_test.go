package gerrit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refUpdatedPayload = `{
  "type": "ref-updated",
  "eventCreatedOn": 1700000000,
  "submitter": {"name": "Jane Doe", "email": "jane@example.com", "username": "jane"},
  "refUpdate": {
    "project": "demo",
    "refName": "master",
    "oldRev": "aaa111",
    "newRev": "bbb222"
  }
}`

func TestParseEventRefUpdated(t *testing.T) {
	evt, err := ParseEvent([]byte(refUpdatedPayload))
	require.NoError(t, err)
	require.Equal(t, EventTypeRefUpdated, evt.Type())

	refUpdated, ok := evt.(*RefUpdated)
	require.True(t, ok)
	require.NotNil(t, refUpdated.RefUpdate)
	assert.Equal(t, "RefUpdate: bbb222 demo master", refUpdated.String())

	ref, ok := refUpdated.RefUpdate.Ref()
	assert.True(t, ok)
	assert.Equal(t, "refs/heads/master", ref)

	require.NotNil(t, refUpdated.Submitter)
	assert.Equal(t, "jane", refUpdated.Submitter.GetUsername())
	assert.Equal(t, "Account: Jane Doe jane@example.com", refUpdated.Submitter.String())

	require.NotNil(t, refUpdated.EventCreatedOn)
	assert.True(t, refUpdated.EventCreatedOn.Equal(time.Unix(1700000000, 0)))
}

func TestParseEventErrors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"type":`))
		assert.ErrorIs(t, err, ErrNotObject)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := ParseEvent([]byte(`[1,2]`))
		assert.ErrorIs(t, err, ErrNotObject)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{}`))
		assert.ErrorIs(t, err, ErrUnsupportedEventType)
	})

	t.Run("other type", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"type":"patchset-created"}`))
		assert.ErrorIs(t, err, ErrUnsupportedEventType)
		assert.Contains(t, err.Error(), "patchset-created")
	})
}

func TestRefUpdatedMissingNestedObjects(t *testing.T) {
	evt, err := ParseEvent([]byte(`{"type":"ref-updated"}`))
	require.NoError(t, err)

	refUpdated := evt.(*RefUpdated)
	assert.Nil(t, refUpdated.RefUpdate)
	assert.Nil(t, refUpdated.Submitter)
	assert.Nil(t, refUpdated.EventCreatedOn)
	assert.Equal(t, "null", refUpdated.String())
}

func TestRefUpdatedFromMapObject(t *testing.T) {
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(refUpdatedPayload), &decoded))

	fromMap, err := EventFromObject(MapObject(decoded))
	require.NoError(t, err)
	fromRaw, err := ParseEvent([]byte(refUpdatedPayload))
	require.NoError(t, err)

	assert.True(t, fromMap.(*RefUpdated).RefUpdate.Equal(fromRaw.(*RefUpdated).RefUpdate))
	assert.True(t, fromMap.(*RefUpdated).Submitter.Equal(fromRaw.(*RefUpdated).Submitter))
	assert.Equal(t, *fromRaw.(*RefUpdated).EventCreatedOn, *fromMap.(*RefUpdated).EventCreatedOn)
}

func TestObjectLookups(t *testing.T) {
	raw := mustParse(t, `{"a.b":"dotted","flag":true,"n":1.5,"count":"12","nested":{"x":"y"}}`)
	m := MapObject{"a.b": "dotted", "flag": true, "n": 1.5, "count": "12", "nested": map[string]interface{}{"x": "y"}}

	for name, obj := range map[string]Object{"raw": raw, "map": m} {
		t.Run(name, func(t *testing.T) {
			value, ok := obj.GetString("a.b")
			assert.True(t, ok)
			assert.Equal(t, "dotted", value)

			value, ok = obj.GetString("flag")
			assert.True(t, ok)
			assert.Equal(t, "true", value)

			value, ok = obj.GetString("n")
			assert.True(t, ok)
			assert.Equal(t, "1.5", value)

			_, ok = obj.GetString("nested")
			assert.False(t, ok)

			_, ok = obj.GetString("missing")
			assert.False(t, ok)

			count, ok := obj.GetInt64("count")
			assert.True(t, ok)
			assert.Equal(t, int64(12), count)

			nested, ok := obj.GetObject("nested")
			require.True(t, ok)
			assert.Equal(t, strPtr("y"), GetString(nested, "x"))

			_, ok = obj.GetObject("flag")
			assert.False(t, ok)
		})
	}
}

func TestObjectDuplicateKeysLastWins(t *testing.T) {
	payload := `{"refUpdate":{"refName":"first","refName":"second"},"a.b":"x","a.b":"y"}`
	raw := mustParse(t, payload)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	m := MapObject(decoded)

	for name, obj := range map[string]Object{"raw": raw, "map": m} {
		t.Run(name, func(t *testing.T) {
			update := RefUpdateFromJSON(mustObject(t, obj, KeyRefUpdate))
			assert.Equal(t, "second", update.GetRefName())
			assert.Equal(t, strPtr("y"), GetString(obj, "a.b"))
		})
	}
}

func mustObject(t *testing.T, obj Object, key string) Object {
	t.Helper()
	nested, ok := obj.GetObject(key)
	require.True(t, ok)
	return nested
}
