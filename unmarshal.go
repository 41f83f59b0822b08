package up

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Unmarshal parses a UP document and stores the result in the value
// pointed to by v. If v is not a pointer to a struct, Unmarshal returns
// an error.
//
// Unmarshal uses struct tags to determine how to map UP keys to struct
// fields:
//   - `up:"fieldname"` - maps UP key "fieldname" to this struct field
//   - `up:"fieldname,omitempty"` - skips the field if the value is empty
//   - `up:"fieldname,required"` - fails if the key is absent
//   - `up:"-"` - ignores this field
//
// Example:
//
//	type Config struct {
//	    Host     string   `up:"host"`
//	    Port     int      `up:"port"`
//	    Enabled  bool     `up:"enabled"`
//	    Tags     []string `up:"tags"`
//	    Database struct {
//	        Host string `up:"host"`
//	        Port int    `up:"port"`
//	    } `up:"database"`
//	}
func Unmarshal(data []byte, v any) error {
	doc, err := Parse(data)
	if err != nil {
		return err
	}
	return UnmarshalDocument(doc, v)
}

// UnmarshalDocument unmarshals a parsed Document into v.
func UnmarshalDocument(doc *Document, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("unmarshal target must be a non-nil pointer")
	}

	elem := rv.Elem()
	if elem.Kind() != reflect.Struct {
		return fmt.Errorf("unmarshal target must be a pointer to struct")
	}

	data := NewBlock()
	for _, node := range doc.Nodes {
		data.Set(node.Key, node.Value)
	}

	return unmarshalStruct(data, elem)
}

// unmarshalStruct unmarshals a block into a struct value
func unmarshalStruct(data *Block, v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		// Skip unexported fields
		if !fieldValue.CanSet() {
			continue
		}

		tag := field.Tag.Get("up")
		if tag == "-" {
			continue
		}

		tagName, opts := parseTag(tag)
		if tagName == "" {
			tagName = strings.ToLower(field.Name)
		}

		value, ok := data.Get(tagName)
		if !ok {
			if hasOption(opts, "required") {
				return fmt.Errorf("required field %s not found", tagName)
			}
			continue
		}

		if hasOption(opts, "omitempty") && isEmpty(value) {
			continue
		}

		if err := setField(fieldValue, value); err != nil {
			return fmt.Errorf("field %s: %v", field.Name, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a UP value
func setField(field reflect.Value, value Value) error {
	if value == nil {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		return setString(field, value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return setInt(field, value)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return setUint(field, value)
	case reflect.Float32, reflect.Float64:
		return setFloat(field, value)
	case reflect.Bool:
		return setBool(field, value)
	case reflect.Slice:
		return setSlice(field, value)
	case reflect.Map:
		return setMap(field, value)
	case reflect.Struct:
		return setStruct(field, value)
	case reflect.Ptr:
		return setPointer(field, value)
	case reflect.Interface:
		field.Set(reflect.ValueOf(value))
		return nil
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
}

func setString(field reflect.Value, value Value) error {
	switch v := value.(type) {
	case Scalar:
		field.SetString(string(v))
	default:
		field.SetString(fmt.Sprint(v))
	}
	return nil
}

func setInt(field reflect.Value, value Value) error {
	s, ok := value.(Scalar)
	if !ok {
		return fmt.Errorf("cannot convert %T to int", value)
	}
	i, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return fmt.Errorf("cannot parse as int: %v", err)
	}
	field.SetInt(i)
	return nil
}

func setUint(field reflect.Value, value Value) error {
	s, ok := value.(Scalar)
	if !ok {
		return fmt.Errorf("cannot convert %T to uint", value)
	}
	i, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return fmt.Errorf("cannot parse as uint: %v", err)
	}
	field.SetUint(i)
	return nil
}

func setFloat(field reflect.Value, value Value) error {
	s, ok := value.(Scalar)
	if !ok {
		return fmt.Errorf("cannot convert %T to float", value)
	}
	f, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return fmt.Errorf("cannot parse as float: %v", err)
	}
	field.SetFloat(f)
	return nil
}

func setBool(field reflect.Value, value Value) error {
	s, ok := value.(Scalar)
	if !ok {
		return fmt.Errorf("cannot convert %T to bool", value)
	}
	b, err := parseBool(string(s))
	if err != nil {
		return fmt.Errorf("cannot parse as bool: %v", err)
	}
	field.SetBool(b)
	return nil
}

func setSlice(field reflect.Value, value Value) error {
	list, ok := value.(List)
	if !ok {
		return fmt.Errorf("cannot convert %T to slice", value)
	}
	slice := reflect.MakeSlice(field.Type(), len(list), len(list))
	for i, item := range list {
		if err := setField(slice.Index(i), item); err != nil {
			return fmt.Errorf("index %d: %v", i, err)
		}
	}
	field.Set(slice)
	return nil
}

func setMap(field reflect.Value, value Value) error {
	block, ok := value.(*Block)
	if !ok {
		return fmt.Errorf("cannot convert %T to map", value)
	}
	m := reflect.MakeMap(field.Type())
	for _, key := range block.Keys() {
		val, _ := block.Get(key)
		elemValue := reflect.New(field.Type().Elem()).Elem()
		if err := setField(elemValue, val); err != nil {
			return fmt.Errorf("key %s: %v", key, err)
		}
		m.SetMapIndex(reflect.ValueOf(key), elemValue)
	}
	field.Set(m)
	return nil
}

func setStruct(field reflect.Value, value Value) error {
	block, ok := value.(*Block)
	if !ok {
		return fmt.Errorf("cannot convert %T to struct", value)
	}
	return unmarshalStruct(block, field)
}

func setPointer(field reflect.Value, value Value) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	ptr := reflect.New(field.Type().Elem())
	if err := setField(ptr.Elem(), value); err != nil {
		return err
	}
	field.Set(ptr)
	return nil
}

// Helper functions

func parseTag(tag string) (string, []string) {
	parts := strings.Split(tag, ",")
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

func hasOption(opts []string, option string) bool {
	for _, opt := range opts {
		if opt == option {
			return true
		}
	}
	return false
}

func isEmpty(value Value) bool {
	switch v := value.(type) {
	case nil:
		return true
	case Scalar:
		return v == ""
	case List:
		return len(v) == 0
	case *Block:
		return v.Len() == 0
	default:
		return false
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "1", "on":
		return true, nil
	case "false", "no", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value: %s", s)
	}
}
