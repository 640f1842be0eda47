package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	t.Run("issues opened", func(t *testing.T) {
		payload := `{
			"action": "opened",
			"issue": {"number": 12, "title": "[auto-generated] Exception in plugin", "body": "b", "state": "open", "user": {"login": "minecraft-dev-autoreporter"}}
		}`
		event, err := ParseEvent(EventIssues, []byte(payload))
		require.NoError(t, err)
		assert.Equal(t, "opened", event.Action)
		require.NotNil(t, event.Issue)
		assert.Equal(t, 12, event.Issue.Number)
		assert.Equal(t, "minecraft-dev-autoreporter", event.Issue.Author)
		assert.Nil(t, event.Comment)
	})

	t.Run("issue comment created", func(t *testing.T) {
		payload := `{
			"action": "created",
			"issue": {"number": 11, "state": "open", "user": {"login": "minecraft-dev-autoreporter"}},
			"comment": {"id": 3, "body": "Duplicate of #10", "user": {"login": "maintainer"}, "created_at": "2023-04-01T10:00:00Z"}
		}`
		event, err := ParseEvent(EventIssueComment, []byte(payload))
		require.NoError(t, err)
		assert.Equal(t, "created", event.Action)
		require.NotNil(t, event.Comment)
		assert.Equal(t, "maintainer", event.Comment.Author)
		assert.True(t, event.Comment.CreatedAt.Equal(time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("unhandled type", func(t *testing.T) {
		event, err := ParseEvent("push", []byte(`not json`))
		require.NoError(t, err)
		assert.Equal(t, "push", event.Type)
		assert.Nil(t, event.Issue)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := ParseEvent(EventIssues, []byte(`{`))
		assert.Error(t, err)
	})

	t.Run("missing issue", func(t *testing.T) {
		_, err := ParseEvent(EventIssues, []byte(`{"action": "opened"}`))
		assert.Error(t, err)
	})
}
