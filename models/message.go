package models

import (
	"fmt"
	"regexp"
	"strings"
)

// MessageEvent is the raw inbound chat event as delivered by the transport.
// Field names and nesting follow the Slack Events API message payload.
type MessageEvent struct {
	Type        string        `json:"type"`
	Subtype     string        `json:"subtype"`
	Channel     string        `json:"channel"`
	User        string        `json:"user"`
	Text        string        `json:"text"`
	Ts          string        `json:"ts"`
	Message     *MessageEvent `json:"message"`
	Attachments []Attachment  `json:"attachments"`
	Files       []File        `json:"files"`
}

// Attachment carries the media-related subset of a message attachment.
type Attachment struct {
	ImageURL    string `json:"image_url"`
	VideoURL    string `json:"video_url"`
	OriginalURL string `json:"original_url"`
	VideoHTML   string `json:"video_html"`
}

// File carries the media-related subset of an uploaded file.
type File struct {
	Mimetype  string `json:"mimetype"`
	Permalink string `json:"permalink"`
}

// MessageRef identifies a message and its author. The timestamp is an opaque
// transport-assigned string compared only for equality.
type MessageRef struct {
	Channel string
	Ts      string
	Author  string
}

// EncodeMessageRef renders a ref as a single space-separated line.
func EncodeMessageRef(ref MessageRef) string {
	return strings.Join([]string{ref.Channel, ref.Ts, ref.Author}, " ")
}

// DecodeMessageRef parses the output of EncodeMessageRef.
func DecodeMessageRef(s string) (MessageRef, error) {
	parts := strings.Split(s, " ")
	if len(parts) != 3 {
		return MessageRef{}, fmt.Errorf("not a message ref: %q", s)
	}
	return MessageRef{Channel: parts[0], Ts: parts[1], Author: parts[2]}, nil
}

// Message is a normalized chat message ready for classification.
type Message struct {
	Channel    string
	Ts         string
	Author     string
	Text       string
	URLsInText []string
	MediaURLs  []string
}

// Ref returns the identity of the message and its author.
func (m *Message) Ref() MessageRef {
	return MessageRef{Channel: m.Channel, Ts: m.Ts, Author: m.Author}
}

var textURLPattern = regexp.MustCompile(`<(https?://[^>]+)>`)

// NormalizeMessage converts a raw inbound event into a Message, or returns nil
// for events that are not regular user messages. A "message_changed" event is
// normalized from its nested message; any other subtype is discarded.
func NormalizeMessage(event *MessageEvent) *Message {
	body := event
	switch {
	case event.Subtype == "message_changed" && event.Message != nil:
		body = event.Message
	case event.Subtype != "":
		return nil
	}

	if event.Channel == "" || body.User == "" || body.Ts == "" {
		return nil
	}

	return &Message{
		Channel:    event.Channel,
		Ts:         body.Ts,
		Author:     body.User,
		Text:       body.Text,
		URLsInText: extractTextURLs(body.Text),
		MediaURLs:  collectMediaURLs(body),
	}
}

func extractTextURLs(text string) []string {
	var urls []string
	for _, match := range textURLPattern.FindAllStringSubmatch(text, -1) {
		urls = append(urls, match[1])
	}
	return urls
}

func collectMediaURLs(body *MessageEvent) []string {
	var urls []string

	for _, attachment := range body.Attachments {
		if attachment.ImageURL != "" {
			urls = append(urls, attachment.ImageURL)
		}
		if attachment.VideoURL != "" {
			urls = append(urls, attachment.VideoURL)
		}
		// Embedded players (YouTube etc.) expose the media through the
		// original URL plus an inline video HTML snippet.
		if attachment.OriginalURL != "" && attachment.VideoHTML != "" {
			urls = append(urls, attachment.OriginalURL)
		}
	}

	for _, file := range body.Files {
		if strings.HasPrefix(file.Mimetype, "image/") || strings.HasPrefix(file.Mimetype, "video/") {
			if file.Permalink != "" {
				urls = append(urls, file.Permalink)
			}
		}
	}

	return urls
}
