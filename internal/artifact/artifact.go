// Package artifact models the file and folder handles that flow between task
// nodes, and the loop items that drive fan-out of a template node into
// per-item instances.
package artifact

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Ref is a named handle to a file or folder produced by a task node. Each
// artifact is exclusively produced by exactly one node and consumed read-only
// by zero or more dependents.
type Ref struct {
	// Producer is the id of the owning node.
	Producer string
	// Name is the logical output name from the template manifest.
	Name string
	// Path is the resolved absolute location of the produced artifact.
	Path string
}

// LoopItem is one element of a runtime-discovered collection. Its fields
// drive {{item.*}} placeholder substitution in sub-folder and sub-path
// patterns.
type LoopItem struct {
	// Name identifies the item and must be unique within its collection.
	Name string
	// Fields holds the item's attributes in string form, keyed by attribute
	// name. Name is always present under the key "name".
	Fields map[string]string
	// Value is the original discovered value, passed through to instance
	// arguments that consume the whole item.
	Value cty.Value
}

// ItemsFromValue converts a discovered collection value into an ordered
// sequence of loop items. Lists, tuples, and sets of objects (or of bare
// strings) are accepted. The sequence order follows the collection's element
// order, which is stable for identical inputs.
func ItemsFromValue(val cty.Value) ([]LoopItem, error) {
	if val.IsNull() || !val.IsKnown() {
		return nil, fmt.Errorf("loop collection is not a known value")
	}

	ty := val.Type()
	if !ty.IsListType() && !ty.IsTupleType() && !ty.IsSetType() {
		return nil, fmt.Errorf("loop collection must be a list, tuple, or set, got %s", ty.FriendlyName())
	}

	var items []LoopItem
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		item, err := itemFromElement(elem)
		if err != nil {
			return nil, fmt.Errorf("loop item %d: %w", len(items), err)
		}
		items = append(items, item)
	}
	return items, nil
}

// itemFromElement builds a single loop item from one collection element.
func itemFromElement(elem cty.Value) (LoopItem, error) {
	if elem.IsNull() {
		return LoopItem{}, fmt.Errorf("element is null")
	}

	if elem.Type() == cty.String {
		name := elem.AsString()
		return LoopItem{
			Name:   name,
			Fields: map[string]string{"name": name},
			Value:  elem,
		}, nil
	}

	if !elem.Type().IsObjectType() && !elem.Type().IsMapType() {
		return LoopItem{}, fmt.Errorf("element must be an object or a string, got %s", elem.Type().FriendlyName())
	}

	fields := make(map[string]string)
	for it := elem.ElementIterator(); it.Next(); {
		k, v := it.Element()
		str, ok := fieldString(v)
		if !ok {
			// Non-primitive attributes are carried in Value but are not
			// addressable from path patterns.
			continue
		}
		fields[k.AsString()] = str
	}

	name, ok := fields["name"]
	if !ok || name == "" {
		return LoopItem{}, fmt.Errorf("element has no 'name' attribute")
	}

	return LoopItem{Name: name, Fields: fields, Value: elem}, nil
}

// fieldString renders a primitive cty value as a path-safe string.
func fieldString(v cty.Value) (string, bool) {
	if v.IsNull() || !v.IsKnown() {
		return "", false
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), true
	case cty.Number:
		return v.AsBigFloat().Text('f', -1), true
	case cty.Bool:
		if v.True() {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}
