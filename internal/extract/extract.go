// Package extract recovers structured content from freeform model output.
package extract

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/thebtf/nurturenote/pkg/models"
)

const fence = "```"

// ErrNotObject is returned when the text is valid JSON but not an object.
var ErrNotObject = errors.New("payload is not a JSON object")

// StripFence removes a fenced code block wrapper from model text.
// The opening line (with its language tag) and everything from the last
// closing fence onward are dropped. Nested wrappers are unwrapped until the
// text no longer starts with a fence, so StripFence(StripFence(x)) == StripFence(x).
func StripFence(text string) string {
	s := strings.TrimSpace(text)
	for strings.HasPrefix(s, fence) {
		next := stripOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func stripOnce(s string) string {
	body := s[len(fence):]
	if i := strings.IndexByte(body, '\n'); i != -1 {
		body = body[i+1:]
	}
	if j := strings.LastIndex(body, fence); j != -1 {
		body = body[:j]
	}
	return strings.TrimSpace(body)
}

// ParseObject strips any fence from text and decodes it as a JSON object.
func ParseObject(text string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(StripFence(text)), &v); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

// Annotations collects URL citations from a Responses API body.
// It walks output[type=message].content[*] and reads either
// content.text.annotations or content.annotations. Only annotations exposing
// url or source_url are kept, deduplicated by URL in first-seen order.
// Structural mismatches yield an empty list.
func Annotations(body []byte) []models.Source {
	out := []models.Source{}
	if !gjson.ValidBytes(body) {
		return out
	}

	output := gjson.GetBytes(body, "output")
	if !output.IsArray() {
		return out
	}

	seen := make(map[string]struct{})
	output.ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != "message" {
			return true
		}
		contents := item.Get("content")
		if !contents.IsArray() {
			return true
		}
		contents.ForEach(func(_, content gjson.Result) bool {
			anns := content.Get("text.annotations")
			if !anns.Exists() {
				anns = content.Get("annotations")
			}
			if !anns.IsArray() {
				return true
			}
			anns.ForEach(func(_, ann gjson.Result) bool {
				if !ann.IsObject() {
					return true
				}
				url := firstString(ann, "url", "source_url")
				if url == "" {
					return true
				}
				if _, dup := seen[url]; dup {
					return true
				}
				seen[url] = struct{}{}
				out = append(out, models.Source{
					URL:   url,
					Title: firstString(ann, "title", "text"),
				})
				return true
			})
			return true
		})
		return true
	})
	return out
}

// firstString returns the first non-blank string among the given fields.
func firstString(obj gjson.Result, fields ...string) string {
	for _, f := range fields {
		v := obj.Get(f)
		if v.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}
