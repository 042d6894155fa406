package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMessage_RegularMessage(t *testing.T) {
	event := &MessageEvent{
		Type:    "message",
		Channel: "C123",
		User:    "U1",
		Ts:      "1000.0001",
		Text:    "hello <https://example.com/a> and <https://example.com/b>",
	}

	message := NormalizeMessage(event)
	require.NotNil(t, message)
	assert.Equal(t, "C123", message.Channel)
	assert.Equal(t, "U1", message.Author)
	assert.Equal(t, "1000.0001", message.Ts)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, message.URLsInText)
	assert.Empty(t, message.MediaURLs)
}

func TestNormalizeMessage_DiscardsOtherSubtypes(t *testing.T) {
	event := &MessageEvent{
		Subtype: "channel_join",
		Channel: "C123",
		User:    "U1",
		Ts:      "1000.0001",
		Text:    "joined",
	}

	assert.Nil(t, NormalizeMessage(event))
}

func TestNormalizeMessage_MessageChangedUsesNestedMessage(t *testing.T) {
	event := &MessageEvent{
		Subtype: "message_changed",
		Channel: "C123",
		Message: &MessageEvent{
			User: "U1",
			Ts:   "1000.0001",
			Text: "edited text",
		},
	}

	message := NormalizeMessage(event)
	require.NotNil(t, message)
	assert.Equal(t, "C123", message.Channel)
	assert.Equal(t, "U1", message.Author)
	assert.Equal(t, "edited text", message.Text)
}

func TestNormalizeMessage_DiscardsIncompleteEvents(t *testing.T) {
	tests := []struct {
		name  string
		event *MessageEvent
	}{
		{"no channel", &MessageEvent{User: "U1", Ts: "1"}},
		{"no user", &MessageEvent{Channel: "C1", Ts: "1"}},
		{"no ts", &MessageEvent{Channel: "C1", User: "U1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, NormalizeMessage(tt.event))
		})
	}
}

func TestNormalizeMessage_CollectsMediaURLs(t *testing.T) {
	event := &MessageEvent{
		Channel: "C123",
		User:    "U1",
		Ts:      "1000.0001",
		Text:    "look at these",
		Attachments: []Attachment{
			{ImageURL: "https://img.example.com/cat.png"},
			{VideoURL: "https://video.example.com/dog.mp4"},
			{OriginalURL: "https://youtube.example.com/w", VideoHTML: "<iframe></iframe>"},
			{OriginalURL: "https://blog.example.com/post"}, // no player, not media
		},
		Files: []File{
			{Mimetype: "image/jpeg", Permalink: "https://files.example.com/photo"},
			{Mimetype: "video/mp4", Permalink: "https://files.example.com/clip"},
			{Mimetype: "application/pdf", Permalink: "https://files.example.com/doc"},
			{Mimetype: "image/png"}, // no permalink to share
		},
	}

	message := NormalizeMessage(event)
	require.NotNil(t, message)
	assert.Equal(t, []string{
		"https://img.example.com/cat.png",
		"https://video.example.com/dog.mp4",
		"https://youtube.example.com/w",
		"https://files.example.com/photo",
		"https://files.example.com/clip",
	}, message.MediaURLs)
}

func TestMessageRef_EncodeDecode(t *testing.T) {
	ref := MessageRef{Channel: "C123", Ts: "1000.0001", Author: "U1"}

	decoded, err := DecodeMessageRef(EncodeMessageRef(ref))
	require.NoError(t, err)
	assert.Equal(t, ref, decoded)

	_, err = DecodeMessageRef("only two fields")
	assert.Error(t, err)
}
