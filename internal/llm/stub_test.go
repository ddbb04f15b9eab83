package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStub_EnqueueReturnsInOrder(t *testing.T) {
	stub := NewStub().Enqueue("first").Enqueue("second")

	resp1, err := stub.ChatCompletion(context.Background(), Request{Provider: "anthropic", Model: "claude"})
	require.NoError(t, err)
	assert.Equal(t, "first", resp1.Content.ToText())

	resp2, err := stub.ChatCompletion(context.Background(), Request{Provider: "anthropic", Model: "claude"})
	require.NoError(t, err)
	assert.Equal(t, "second", resp2.Content.ToText())
}

func TestStub_NoQueuedResponseErrors(t *testing.T) {
	stub := NewStub()
	_, err := stub.ChatCompletion(context.Background(), Request{Provider: "openai", Model: "gpt"})
	assert.Error(t, err)
}

func TestStub_RecordsCalls(t *testing.T) {
	stub := NewStub().Enqueue("ok")
	_, err := stub.ChatCompletion(context.Background(), Request{Provider: "openai", Model: "gpt-4"})
	require.NoError(t, err)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "gpt-4", calls[0].Model)
}

func TestContent_ToText(t *testing.T) {
	assert.Equal(t, "hello", TextContent("hello").ToText())
	assert.Equal(t, "a\nb", BlocksContent([]Block{{Text: "a"}, {Text: "b"}}).ToText())
	assert.Equal(t, "", Content{}.ToText())
}
