package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Generate 根据结构体定义生成严格 JSON Schema
// 所有字段均为必填，对象禁止额外属性。字段约束通过 `jsonschema` 标签声明：
//
//	format=date、enum=a|b|c、minimum=0、maximum=1、minLength=1、maxLength=250
func Generate(t reflect.Type) (map[string]any, error) {
	return generate(t, nil)
}

// For 泛型便捷入口
func For[T any]() (map[string]any, error) {
	var zero T
	return Generate(reflect.TypeOf(zero))
}

func generate(t reflect.Type, stack []reflect.Type) (map[string]any, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	for _, seen := range stack {
		if seen == t {
			return nil, fmt.Errorf("类型 %s 存在循环引用", t)
		}
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.Slice, reflect.Array:
		items, err := generate(t.Elem(), stack)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Map:
		return map[string]any{"type": "object"}, nil
	case reflect.Interface:
		return map[string]any{}, nil
	case reflect.Struct:
		return generateObject(t, append(stack, t))
	default:
		return nil, fmt.Errorf("不支持的字段类型: %s", t)
	}
}

func generateObject(t reflect.Type, stack []reflect.Type) (map[string]any, error) {
	props := make(map[string]any, t.NumField())
	required := make([]any, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonName(field)
		if name == "-" {
			continue
		}

		prop, err := generate(field.Type, stack)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), field.Name, err)
		}
		if err := applyTag(prop, field.Tag.Get("jsonschema")); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), field.Name, err)
		}
		props[name] = prop
		required = append(required, name)
	}

	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}, nil
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func applyTag(prop map[string]any, tag string) error {
	if tag == "" {
		return nil
	}
	for _, part := range strings.Split(tag, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return fmt.Errorf("无效的 jsonschema 标签: %q", part)
		}
		switch key {
		case "format":
			prop["format"] = value
		case "enum":
			values := strings.Split(value, "|")
			enum := make([]any, len(values))
			for i, v := range values {
				enum[i] = v
			}
			prop["enum"] = enum
		case "minimum", "maximum":
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("%s 不是数字: %w", key, err)
			}
			prop[key] = n
		case "minLength", "maxLength", "minItems", "maxItems":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%s 不是整数: %w", key, err)
			}
			prop[key] = n
		default:
			return fmt.Errorf("未知的 jsonschema 约束: %s", key)
		}
	}
	return nil
}
