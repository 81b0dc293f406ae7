// Package xmldiff compares XML coverage reports structurally. Both
// documents are converted to a generic representation (attributes keyed
// "@name", text content "#text", same-named siblings grouped into arrays)
// and compared recursively. Numeric leaves match within a small tolerance
// so rate attributes survive floating point noise; everything else must
// match exactly, including same-name sibling order.
package xmldiff

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Tolerance is the maximum absolute difference under which two numeric
// leaves are considered equal.
const Tolerance = 1e-4

// Compare checks the generated document against the reference document and
// returns an error describing the first difference, or nil when the
// documents are structurally equal.
func Compare(reference, generated string) error {
	refRepn, err := parseDoc(reference)
	if err != nil {
		return fmt.Errorf("failed to parse reference XML: %w", err)
	}
	genRepn, err := parseDoc(generated)
	if err != nil {
		return fmt.Errorf("failed to parse generated XML: %w", err)
	}
	return compare("", refRepn, genRepn)
}

// parseDoc parses an XML document and converts its root element into the
// generic representation.
func parseDoc(content string) (interface{}, error) {
	doc, err := xmlquery.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}
	for child := doc.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return map[string]interface{}{child.Data: convertElement(child)}, nil
		}
	}
	return nil, errors.New("document has no root element")
}

// convertElement builds the generic representation of one element:
//   - no attributes, children or text   -> nil
//   - only text                         -> string
//   - otherwise                         -> map with "@attr", "#text" and
//     child entries; repeated same-named children become arrays
func convertElement(node *xmlquery.Node) interface{} {
	attrs := make(map[string]interface{})
	for _, attr := range node.Attr {
		attrs["@"+attr.Name.Local] = attr.Value
	}

	children := make(map[string][]interface{})
	var textParts []string
	hasChildren := false

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode:
			hasChildren = true
			children[child.Data] = append(children[child.Data], convertElement(child))
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if text := strings.TrimSpace(child.Data); text != "" {
				textParts = append(textParts, text)
			}
		}
	}

	text := strings.Join(textParts, " ")

	if len(attrs) == 0 && !hasChildren {
		if text == "" {
			return nil
		}
		return text
	}

	result := make(map[string]interface{})
	for name, value := range attrs {
		result[name] = value
	}
	if text != "" {
		result["#text"] = text
	}
	for name, values := range children {
		if len(values) == 1 {
			result[name] = values[0]
		} else {
			result[name] = values
		}
	}
	return result
}

func compare(path string, ref, gen interface{}) error {
	switch refVal := ref.(type) {
	case nil:
		if gen != nil {
			return fmt.Errorf("mismatch at %s: reference is empty, generated is %s", pathOrRoot(path), describe(gen))
		}
		return nil
	case string:
		genVal, ok := gen.(string)
		if !ok {
			return fmt.Errorf("mismatch at %s: reference is %s, generated is %s", pathOrRoot(path), describe(ref), describe(gen))
		}
		return compareScalar(path, refVal, genVal)
	case map[string]interface{}:
		genVal, ok := gen.(map[string]interface{})
		if !ok {
			return fmt.Errorf("mismatch at %s: reference is %s, generated is %s", pathOrRoot(path), describe(ref), describe(gen))
		}
		return compareMap(path, refVal, genVal)
	case []interface{}:
		genVal, ok := gen.([]interface{})
		if !ok {
			return fmt.Errorf("mismatch at %s: reference has %d elements, generated has 1", pathOrRoot(path), len(refVal))
		}
		if len(refVal) != len(genVal) {
			return fmt.Errorf("mismatch at %s: reference has %d elements, generated has %d", pathOrRoot(path), len(refVal), len(genVal))
		}
		for i := range refVal {
			if err := compare(fmt.Sprintf("%s[%d]", path, i), refVal[i], genVal[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("mismatch at %s: unsupported node type %T", pathOrRoot(path), ref)
}

// compareScalar compares two leaf values. Values that both parse as floats
// match within Tolerance; everything else must be byte-equal.
func compareScalar(path, ref, gen string) error {
	if ref == gen {
		return nil
	}
	refNum, refErr := strconv.ParseFloat(ref, 64)
	genNum, genErr := strconv.ParseFloat(gen, 64)
	if refErr == nil && genErr == nil {
		if math.Abs(refNum-genNum) <= Tolerance {
			return nil
		}
		return fmt.Errorf("mismatch at %s: reference %s, generated %s differ beyond tolerance %g", pathOrRoot(path), ref, gen, Tolerance)
	}
	return fmt.Errorf("mismatch at %s: reference %q, generated %q", pathOrRoot(path), ref, gen)
}

// compareMap requires the same keys on both sides before descending.
func compareMap(path string, ref, gen map[string]interface{}) error {
	keys := make([]string, 0, len(ref))
	for key := range ref {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		genVal, ok := gen[key]
		if !ok {
			return fmt.Errorf("mismatch at %s: %s missing from generated output", pathOrRoot(path), keyLabel(key))
		}
		if err := compare(path+"/"+key, ref[key], genVal); err != nil {
			return err
		}
	}

	var extra []string
	for key := range gen {
		if _, ok := ref[key]; !ok {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("mismatch at %s: %s not present in reference", pathOrRoot(path), keyLabel(extra[0]))
	}
	return nil
}

func keyLabel(key string) string {
	switch {
	case strings.HasPrefix(key, "@"):
		return fmt.Sprintf("attribute %q", strings.TrimPrefix(key, "@"))
	case key == "#text":
		return "text content"
	default:
		return fmt.Sprintf("element <%s>", key)
	}
}

func describe(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "empty"
	case string:
		return fmt.Sprintf("text %q", val)
	case map[string]interface{}:
		return "an element"
	case []interface{}:
		return fmt.Sprintf("%d elements", len(val))
	}
	return fmt.Sprintf("%T", v)
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
