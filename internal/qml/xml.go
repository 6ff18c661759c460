package qml

import (
	"bytes"
	"encoding/json"
	"io"
	"maps"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// xmlNameRe matches an XML element or attribute name with an optional
// namespace prefix. Only ASCII names are accepted.
var xmlNameRe = regexp.MustCompile(`^(?:[A-Za-z_][A-Za-z0-9_.\-]*:)?[A-Za-z_][A-Za-z0-9_.\-]*$`)

// XMLConfig controls how a tree is rendered to XML.
type XMLConfig struct {
	// AttrPrefix marks keys that become attributes of the enclosing element.
	AttrPrefix string `toml:"attr_prefix"`
	// TextKey holds the character data of the enclosing element.
	TextKey string `toml:"text_key"`
	// SignificantDigits bounds float formatting.
	SignificantDigits int `toml:"significant_digits"`
	// Indent is the number of spaces per nesting level; negative disables it.
	Indent int `toml:"indent"`
	// Namespaces are xmlns:<prefix> declarations added to the root element
	// when the tree does not already declare them.
	Namespaces map[string]string `toml:"namespaces"`
}

// DefaultXMLConfig returns the xmltodict-style conventions: "@" attributes,
// "#text" character data, 12 significant digits, two-space indent.
func DefaultXMLConfig() XMLConfig {
	return XMLConfig{
		AttrPrefix:        "@",
		TextKey:           "#text",
		SignificantDigits: 12,
		Indent:            2,
	}
}

// Serializer renders generic trees as XML. It holds no state besides its
// configuration and is safe for concurrent use.
type Serializer struct {
	cfg XMLConfig
}

// NewSerializer returns a Serializer; zero-valued fields of cfg take the
// defaults from DefaultXMLConfig.
func NewSerializer(cfg XMLConfig) *Serializer {
	def := DefaultXMLConfig()
	if cfg.AttrPrefix == "" {
		cfg.AttrPrefix = def.AttrPrefix
	}
	if cfg.TextKey == "" {
		cfg.TextKey = def.TextKey
	}
	if cfg.SignificantDigits <= 0 {
		cfg.SignificantDigits = def.SignificantDigits
	}
	if cfg.Indent == 0 {
		cfg.Indent = def.Indent
	}
	return &Serializer{cfg: cfg}
}

// Marshal renders tree as an XML document.
func (s *Serializer) Marshal(tree any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes tree as an XML document to w.
func (s *Serializer) Encode(w io.Writer, tree any) error {
	doc, err := s.Document(tree)
	if err != nil {
		return err
	}
	_, err = doc.WriteTo(w)
	return err
}

// Document builds the etree document for tree. The tree must be a mapping
// with exactly one key, which names the root element.
func (s *Serializer) Document(tree any) (*etree.Document, error) {
	keys, get, ok := mapping(tree)
	if !ok {
		return nil, &SerializationError{Path: "/", Value: tree, Reason: "root must be a mapping"}
	}
	if len(keys) != 1 {
		return nil, &SerializationError{Path: "/", Reason: "root mapping must have exactly one key, got " + strconv.Itoa(len(keys))}
	}
	name := keys[0]
	if s.isAttr(name) || name == s.cfg.TextKey {
		return nil, &SerializationError{Path: "/" + name, Reason: "root key must name an element"}
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	rootValue := get(name)
	if isNil(rootValue) {
		return nil, &SerializationError{Path: "/" + name, Reason: "root element is nil"}
	}
	if _, _, isMap := mapping(rootValue); !isMap && !isScalar(rootValue) {
		return nil, &SerializationError{Path: "/" + name, Value: rootValue, Reason: "root must be a single element"}
	}
	if err := s.writeElement(&doc.Element, name, rootValue, "/"+name); err != nil {
		return nil, err
	}
	root := doc.Root()
	for _, prefix := range sortedKeys(s.cfg.Namespaces) {
		attr := "xmlns:" + prefix
		if root.SelectAttr(attr) == nil {
			root.CreateAttr(attr, s.cfg.Namespaces[prefix])
		}
	}
	if s.cfg.Indent > 0 {
		doc.Indent(s.cfg.Indent)
	}
	return doc, nil
}

// write places value v under parent according to key.
func (s *Serializer) write(parent *etree.Element, key string, v any, path string) error {
	if isNil(v) {
		return nil
	}
	switch {
	case s.isAttr(key):
		name := strings.TrimPrefix(key, s.cfg.AttrPrefix)
		if !xmlNameRe.MatchString(name) {
			return &SerializationError{Path: path, Reason: "invalid XML name " + strconv.Quote(name)}
		}
		text, err := s.FormatScalar(v)
		if err != nil {
			return wrapPath(err, path)
		}
		parent.CreateAttr(name, text)
		return nil
	case key == s.cfg.TextKey:
		text, err := s.FormatScalar(v)
		if err != nil {
			return wrapPath(err, path)
		}
		parent.SetText(text)
		return nil
	}

	if items, ok := sequence(v); ok {
		for i, item := range items {
			itemPath := path + "[" + strconv.Itoa(i) + "]"
			if _, nested := sequence(item); nested {
				return &SerializationError{Path: itemPath, Value: item, Reason: "nested sequence has no element name"}
			}
			if err := s.writeElement(parent, key, item, itemPath); err != nil {
				return err
			}
		}
		return nil
	}
	return s.writeElement(parent, key, v, path)
}

// writeElement creates one child element named key holding v.
func (s *Serializer) writeElement(parent *etree.Element, key string, v any, path string) error {
	if isNil(v) {
		return nil
	}
	if !xmlNameRe.MatchString(key) {
		return &SerializationError{Path: path, Reason: "invalid XML name " + strconv.Quote(key)}
	}
	if keys, get, ok := mapping(v); ok {
		el := parent.CreateElement(key)
		for _, k := range keys {
			if err := s.write(el, k, get(k), path+"/"+k); err != nil {
				return err
			}
		}
		return nil
	}
	text, err := s.FormatScalar(v)
	if err != nil {
		return wrapPath(err, path)
	}
	parent.CreateElement(key).SetText(text)
	return nil
}

// FormatScalar renders a leaf value as text.
func (s *Serializer) FormatScalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return s.formatFloat(float64(x))
	case float64:
		return s.formatFloat(x)
	case json.Number:
		return x.String(), nil
	case time.Time:
		return FormatTime(x), nil
	}
	return "", &SerializationError{Value: v, Reason: "unsupported value type"}
}

func (s *Serializer) formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", &SerializationError{Value: f, Reason: "non-finite number"}
	}
	return strconv.FormatFloat(f, 'g', s.cfg.SignificantDigits, 64), nil
}

func (s *Serializer) isAttr(key string) bool {
	return strings.HasPrefix(key, s.cfg.AttrPrefix)
}

func wrapPath(err error, path string) error {
	if se, ok := err.(*SerializationError); ok && se.Path == "" {
		se.Path = path
		return se
	}
	return err
}

// mapping reports whether v is a mapping, returning its keys in output order
// and an accessor. Plain Go maps are emitted in sorted key order.
func mapping(v any) ([]string, func(string) any, bool) {
	switch m := v.(type) {
	case *Dict:
		if m == nil {
			return nil, nil, false
		}
		return m.Keys(), func(k string) any { x, _ := m.Get(k); return x }, true
	case map[string]any:
		return sortedKeys(m), func(k string) any { return m[k] }, true
	case map[string]string:
		return sortedKeys(m), func(k string) any { return m[k] }, true
	}
	return nil, nil, false
}

// sequence reports whether v is a list value and returns its items.
func sequence(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []*Dict:
		return Seq(x...), true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// isNil treats typed nil pointers and maps, such as a nil *Dict, like nil.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map:
		return rv.IsNil()
	}
	return false
}

func isScalar(v any) bool {
	if _, ok := sequence(v); ok {
		return false
	}
	_, _, ok := mapping(v)
	return !ok
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
