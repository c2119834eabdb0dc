package devs

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Field names a queryable device attribute. The set is closed: unknown
// names are rejected when the query is built, not discovered at runtime.
type Field string

const (
	FieldName    Field = "name"
	FieldUID     Field = "uid"
	FieldAddress Field = "address"
	FieldHub     Field = "hub"
	FieldPort    Field = "port"
)

// ParseField validates a field name coming from the CLI.
func ParseField(name string) (Field, error) {
	switch f := Field(strings.TrimSpace(name)); f {
	case FieldName, FieldUID, FieldAddress, FieldHub, FieldPort:
		return f, nil
	default:
		return "", errors.Errorf("unknown device field %q (valid: name, uid, address, hub, port)", name)
	}
}

// fieldValue returns the device's value for the field, with ok=false when
// the field lives on an unbound endpoint.
func fieldValue(d *Device, f Field) (string, bool) {
	switch f {
	case FieldName:
		return d.Name, true
	case FieldUID:
		return d.UID, true
	case FieldAddress:
		if d.Access == nil {
			return "", false
		}
		return d.Access.Address, true
	case FieldHub:
		if d.Switch == nil {
			return "", false
		}
		return d.Switch.Hub, true
	case FieldPort:
		if d.Switch == nil {
			return "", false
		}
		return strconv.Itoa(d.Switch.Port), true
	}
	return "", false
}

// Filter restricts a query to devices whose field matches the value, either
// exactly or by substring.
type Filter struct {
	Field Field
	Value string
	Exact bool
}

// ParseFilter parses an "attribute=value" expression.
func ParseFilter(expr string) (Filter, error) {
	key, value, found := strings.Cut(expr, "=")
	if !found {
		return Filter{}, errors.Errorf("filter %q must be in format 'attribute=value'", expr)
	}
	field, err := ParseField(key)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Field: field, Value: value, Exact: true}, nil
}

func (f Filter) matches(d *Device) bool {
	val, ok := fieldValue(d, f.Field)
	if !ok {
		return false
	}
	if f.Exact {
		return val == f.Value
	}
	return strings.Contains(val, f.Value)
}

// Query returns the requested field of every device passing all filters.
// Devices where the field is unbound are left out.
func Query(devices []*Device, field Field, filters []Filter) []string {
	var values []string
	for _, dev := range devices {
		matched := true
		for _, filter := range filters {
			if !filter.matches(dev) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		if val, ok := fieldValue(dev, field); ok {
			values = append(values, val)
		}
	}
	return values
}
