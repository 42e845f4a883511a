// Package xmltree builds a small element tree from an XML document and
// offers lookups that tolerate both namespaced and un-namespaced elements.
//
// Paths are slash-separated local names ("Period/timeInterval/start").
// Element names may contain dots, as the transparency schemas use them
// ("process.processType"), so the dot is never a separator.
package xmltree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is one XML element.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Node
	text     strings.Builder
}

// Text returns the trimmed character data directly inside n.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.text.String())
}

// Tree is a parsed document together with the namespace of its root.
type Tree struct {
	Root      *Node
	Namespace string
}

// Parse reads a complete XML document. Truncated or otherwise malformed input
// returns an error; no partial tree is produced.
func Parse(r io.Reader) (*Tree, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	var stack []*Node
	var root *Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name, Attrs: t.Copy().Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements: %q after %q", t.Name.Local, root.Name.Local)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("document has no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unexpected end of document inside <%s>", stack[len(stack)-1].Name.Local)
	}
	return &Tree{Root: root, Namespace: root.Name.Space}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Tree, error) {
	return Parse(strings.NewReader(s))
}

// Find returns the first element matching path below n, trying the document
// namespace first and un-namespaced elements second.
func (t *Tree) Find(n *Node, path string) *Node {
	if found := t.FindAll(n, path); len(found) > 0 {
		return found[0]
	}
	return nil
}

// FindAll returns all elements matching path below n. The namespaced form is
// tried first; the bare form is used only when the namespaced form matches
// nothing.
func (t *Tree) FindAll(n *Node, path string) []*Node {
	if n == nil {
		return nil
	}
	segs := strings.Split(path, "/")
	if t.Namespace != "" {
		if found := walk([]*Node{n}, segs, t.Namespace); len(found) > 0 {
			return found
		}
	}
	return walk([]*Node{n}, segs, "")
}

// Text returns the text of the first element matching path, or "".
func (t *Tree) Text(n *Node, path string) string {
	return t.Find(n, path).Text()
}

func walk(nodes []*Node, segs []string, space string) []*Node {
	for _, seg := range segs {
		var next []*Node
		for _, n := range nodes {
			for _, c := range n.Children {
				if c.Name.Local == seg && c.Name.Space == space {
					next = append(next, c)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		nodes = next
	}
	return nodes
}

// LocalName returns the root element name without its namespace.
func (t *Tree) LocalName() string {
	return t.Root.Name.Local
}
