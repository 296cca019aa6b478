// Package jsonutil prints structs as colored "Name: value" lines for the command line.
package jsonutil

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/fatih/structs"
	"github.com/hokaccha/go-prettyjson"
)

var formatter *prettyjson.Formatter

func init() {
	formatter = prettyjson.NewFormatter()
	formatter.Indent = 0
	formatter.Newline = ""
}

// FieldFunc may replace the value of a field before it is printed.
// Returning false omits the field.
type FieldFunc func(name string, value interface{}) (interface{}, bool)

// MarshalCompactPretty formats the exported fields of struct v, one per line in declaration order.
// Errors and fmt.Stringer values are printed as strings. Nil pointers and nil errors are omitted.
func MarshalCompactPretty(v interface{}, fn FieldFunc) ([]byte, error) {
	var buf bytes.Buffer
	for _, f := range structs.Fields(v) {
		if !f.IsExported() {
			continue
		}
		name := f.Name()
		val, ok := normalize(f.Value())
		if !ok {
			continue
		}
		if fn != nil {
			if val, ok = fn(name, val); !ok {
				continue
			}
		}
		b, err := formatter.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func normalize(v interface{}) (interface{}, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case error:
		return x.Error(), true
	case fmt.Stringer:
		if isNilPointer(x) {
			return nil, false
		}
		return x.String(), true
	}
	if isNilPointer(v) {
		return nil, false
	}
	return v, true
}

func isNilPointer(v interface{}) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
