package xmpp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Element is a generic XML payload node. Item payloads carry arbitrary
// schemas identified by their qualified root name, so sources inspect
// them through these accessors instead of per-schema structs.
type Element struct {
	Space    string
	Name     string
	Attrs    []xml.Attr
	Children []*Element
	Value    string
}

// ParseElement parses a single XML document into an Element tree.
func ParseElement(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)

	var stack []*Element
	var root *Element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse payload: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{
				Space: t.Name.Space,
				Name:  t.Name.Local,
				Attrs: append([]xml.Attr(nil), t.Attr...),
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("parse payload: multiple roots")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("parse payload: unbalanced end tag")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Value += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("parse payload: empty document")
	}
	return root, nil
}

// ParseElementString parses an XML document held in a string.
func ParseElementString(s string) (*Element, error) {
	return ParseElement(strings.NewReader(s))
}

// NewElement creates an element with a namespace and local name.
func NewElement(space, name string) *Element {
	return &Element{Space: space, Name: name}
}

// AddChild appends a child element and returns it.
func (e *Element) AddChild(space, name string) *Element {
	child := &Element{Space: space, Name: name}
	e.Children = append(e.Children, child)
	return child
}

// AddText appends a child element holding character data.
func (e *Element) AddText(space, name, value string) *Element {
	child := e.AddChild(space, name)
	child.Value = value
	return child
}

// Child returns the first direct child with the given local name in any
// namespace, or nil.
func (e *Element) Child(name string) *Element {
	if e == nil {
		return nil
	}
	for _, child := range e.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// ChildNS returns the first direct child with the given namespace and
// local name, or nil.
func (e *Element) ChildNS(space, name string) *Element {
	if e == nil {
		return nil
	}
	for _, child := range e.Children {
		if child.Space == space && child.Name == name {
			return child
		}
	}
	return nil
}

// ChildrenNamed returns all direct children with the given namespace and
// local name.
func (e *Element) ChildrenNamed(space, name string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, child := range e.Children {
		if child.Space == space && child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

// Text returns the element's character data, trimmed. Nil-safe so that
// lookups like payload.Child("person").Child("title").Text() do not need
// intermediate checks.
func (e *Element) Text() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Value)
}

// ChildText returns the trimmed text of the first child with the given
// local name.
func (e *Element) ChildText(name string) string {
	return e.Child(name).Text()
}

// Attr returns the value of the named attribute, or fallback when absent.
func (e *Element) Attr(name, fallback string) string {
	if e == nil {
		return fallback
	}
	for _, attr := range e.Attrs {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return fallback
}

// XML serializes the element tree.
func (e *Element) XML() string {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	e.encode(enc, "")
	enc.Flush()
	return buf.String()
}

func (e *Element) encode(enc *xml.Encoder, parentSpace string) {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	if e.Space != "" && e.Space != parentSpace {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "xmlns"}, Value: e.Space})
	}
	for _, attr := range e.Attrs {
		if attr.Name.Local == "xmlns" {
			continue
		}
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attr.Name.Local}, Value: attr.Value})
	}
	enc.EncodeToken(start)
	if e.Value != "" {
		enc.EncodeToken(xml.CharData(e.Value))
	}
	for _, child := range e.Children {
		child.encode(enc, e.Space)
	}
	enc.EncodeToken(xml.EndElement{Name: start.Name})
}
