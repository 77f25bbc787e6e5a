// Package identity derives stable hardware identities for display outputs.
//
// Connector names and protocol object ids change across sessions, ports and
// hotplugs; the manufacturer/model/serial triplet a panel's EDID reports does
// not. An ID is an opaque blob so callers cannot grow dependencies on its
// layout.
package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// ID is the stable identity of a physical display. An empty ID means the
// hardware did not report enough data to be recognized across sessions;
// callers must treat such outputs as matchable only by lower-confidence
// heuristics (connector name) and surface that explicitly.
type ID []byte

// Placeholder strings some firmwares report instead of real identity data.
var genericValues = map[string]bool{
	"unknown":      true,
	"(null)":       true,
	"none":         true,
	"n/a":          true,
	"generic":      true,
	"default":      true,
	"0":            true,
	"0x00000000":   true,
	"manufacturer": true,
}

// Derive builds an ID from the manufacturer, model and serial strings an
// output reports. Each field is length-prefixed so distinct triplets can
// never collide ("AB","C" vs "A","BC"). Returns an empty ID when the triplet
// carries no usable data; absence is a value, not an error.
func Derive(manufacturer, model, serial string) ID {
	mk := clean(manufacturer)
	md := clean(model)
	sn := clean(serial)
	if mk == "" && md == "" && sn == "" {
		return nil
	}

	buf := make([]byte, 0, 12+len(mk)+len(md)+len(sn))
	for _, field := range []string{mk, md, sn} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(field)))
		buf = append(buf, n[:]...)
		buf = append(buf, field...)
	}
	return ID(buf)
}

func clean(s string) string {
	s = strings.TrimSpace(s)
	if genericValues[strings.ToLower(s)] {
		return ""
	}
	return s
}

// Valid reports whether the ID carries usable identity data.
func (id ID) Valid() bool { return len(id) > 0 }

// Key returns the ID in a form usable as a map key.
func (id ID) Key() string { return string(id) }

// Equal reports whether two IDs identify the same hardware.
func (id ID) Equal(other ID) bool { return bytes.Equal(id, other) }

// Equal is the package-level form of ID.Equal.
func Equal(a, b ID) bool { return a.Equal(b) }

// String returns a short digest for logs. Never the raw blob: log lines
// should not leak serial numbers.
func (id ID) String() string {
	if !id.Valid() {
		return "none"
	}
	sum := sha256.Sum256(id)
	return hex.EncodeToString(sum[:4])
}

// MarshalYAML encodes the ID as standard base64 so profile files stay
// readable without yaml !!binary tags.
func (id ID) MarshalYAML() (interface{}, error) {
	if !id.Valid() {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString(id), nil
}

// UnmarshalYAML decodes the base64 form written by MarshalYAML.
func (id *ID) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*id = nil
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*id = raw
	return nil
}

// MarshalJSON mirrors the YAML encoding for --json output.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.Valid() {
		return []byte(`""`), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(id))
}

// UnmarshalJSON decodes the base64 form written by MarshalJSON.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*id = nil
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*id = raw
	return nil
}
