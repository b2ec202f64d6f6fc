package report

import (
	"bytes"
	"encoding/json"
)

// Decode parses a raw API body for the given kind. Shapes that do not match
// the kind decode to an empty payload rather than an error.
func Decode(def Definition, raw []byte) Payload {
	if def.Grouped {
		return Payload{Grouped: true, Groups: decodeGroups(raw)}
	}
	return Payload{Items: decodeItems(raw)}
}

func decodeItems(raw []byte) []LineItem {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return []LineItem{}
	}
	return itemsOf(v)
}

// decodeGroups walks the top-level object token by token so that groups keep
// the order the API sent them in.
func decodeGroups(raw []byte) []Group {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return []Group{}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return []Group{}
	}

	groups := []Group{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return []Group{}
		}
		key, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return []Group{}
		}
		groups = append(groups, Group{Key: key, Items: itemsOf(value)})
	}
	if _, err := dec.Token(); err != nil {
		return []Group{}
	}
	return groups
}

func itemsOf(v any) []LineItem {
	arr, ok := v.([]any)
	if !ok {
		return []LineItem{}
	}
	items := make([]LineItem, 0, len(arr))
	for _, el := range arr {
		if obj, ok := el.(map[string]any); ok {
			items = append(items, LineItem(obj))
		}
	}
	return items
}
