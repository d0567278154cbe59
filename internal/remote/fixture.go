package remote

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// LoadFixture parses a recorded remote listing/search response and feeds it
// into dst, the shape tests use to seed a MemoryRemote from a JSON file
// instead of hand-built Go literals. Grounded on
// alexjbarnes-vault-sync's use of gjson for traversing arbitrary JSON API
// responses without declaring a matching struct for every endpoint shape.
//
// Expected shape:
//
//	{
//	  "listings": {"<dirUUID>": [{"uuid":"...","parent":"...","kind":"dir|file", ...}]},
//	  "searches": {"<query>": [{"uuid":"...", "path":"...", ...}]},
//	  "recents": [{"uuid":"...", "path":"...", ...}]
//	}
func LoadFixture(dst *MemoryRemote, raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("remote fixture: invalid JSON")
	}
	root := gjson.ParseBytes(raw)

	root.Get("listings").ForEach(func(dirUUID, arr gjson.Result) bool {
		var children []Child
		arr.ForEach(func(_, c gjson.Result) bool {
			children = append(children, childFromJSON(c))
			return true
		})
		dst.SetChildren(dirUUID.String(), children)
		return true
	})

	root.Get("searches").ForEach(func(query, arr gjson.Result) bool {
		var matches []SearchMatch
		arr.ForEach(func(_, m gjson.Result) bool {
			matches = append(matches, searchMatchFromJSON(m))
			return true
		})
		dst.SetSearchResults(query.String(), matches)
		return true
	})

	if recents := root.Get("recents"); recents.Exists() {
		var matches []SearchMatch
		recents.ForEach(func(_, m gjson.Result) bool {
			matches = append(matches, searchMatchFromJSON(m))
			return true
		})
		dst.SetRecents(matches)
	}

	return nil
}

func childFromJSON(c gjson.Result) Child {
	kind := ChildFile
	if c.Get("kind").String() == "dir" {
		kind = ChildDir
	}
	return Child{
		UUID:         c.Get("uuid").String(),
		ParentUUID:   c.Get("parent").String(),
		Kind:         kind,
		RawMetadata:  []byte(c.Get("raw_metadata").String()),
		RawState:     RawMetadataState(c.Get("raw_state").Int()),
		KeyVersion:   int(c.Get("key_version").Int()),
		Size:         c.Get("size").Int(),
		Chunks:       c.Get("chunks").Int(),
		Region:       optionalString(c.Get("region")),
		Bucket:       optionalString(c.Get("bucket")),
		LastModified: c.Get("last_modified").Int(),
		Favorited:    c.Get("favorited").Bool(),
	}
}

// optionalString returns nil for a field the fixture JSON omitted, rather
// than a pointer to an empty string.
func optionalString(r gjson.Result) *string {
	if !r.Exists() {
		return nil
	}
	s := r.String()
	return &s
}

func searchMatchFromJSON(m gjson.Result) SearchMatch {
	return SearchMatch{
		Child: childFromJSON(m),
		Path:  m.Get("path").String(),
	}
}
