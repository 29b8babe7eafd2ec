package cliutil

import (
	"encoding"
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

var durationType = reflect.TypeOf(time.Duration(0))

// PopulateStruct overrides struct fields with the values of the flags named by their `cli` tags.
// Only flags that are set, on the command line or through their environment variable, are applied,
// so values loaded from a config file remain unless a flag overrides them.
// Untagged struct fields are populated recursively.
func PopulateStruct(cfg any, ctx *cli.Context) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config must be a pointer to struct")
	}
	return populate(v.Elem(), ctx)
}

func populate(v reflect.Value, ctx *cli.Context) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)
		if !fieldValue.CanSet() {
			continue
		}
		cliTag := field.Tag.Get("cli")
		if cliTag == "" {
			if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(common.Hash{}) && field.Type != reflect.TypeOf(common.Address{}) {
				if err := populate(fieldValue, ctx); err != nil {
					return fmt.Errorf("%s: %w", field.Name, err)
				}
			}
			continue
		}
		if !ctx.IsSet(cliTag) {
			continue
		}
		if err := setFieldValue(fieldValue, field.Type, ctx, cliTag); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}
	return nil
}

// setFieldValue sets the appropriate value based on the field type
func setFieldValue(fieldValue reflect.Value, fieldType reflect.Type, ctx *cli.Context, flag string) error {
	if fieldType == durationType {
		fieldValue.SetInt(int64(ctx.Duration(flag)))
		return nil
	}
	switch fieldType.Kind() {
	case reflect.String:
		fieldValue.SetString(ctx.String(flag))
	case reflect.Bool:
		fieldValue.SetBool(ctx.Bool(flag))
	case reflect.Int, reflect.Int64:
		fieldValue.SetInt(int64(ctx.Int(flag)))
	case reflect.Uint64:
		fieldValue.SetUint(ctx.Uint64(flag))
	case reflect.Float64:
		fieldValue.SetFloat(ctx.Float64(flag))
	case reflect.Slice:
		if fieldType.Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", fieldType)
		}
		values := ctx.StringSlice(flag)
		out := reflect.MakeSlice(fieldType, len(values), len(values))
		for i, s := range values {
			out.Index(i).SetString(s)
		}
		fieldValue.Set(out)
	case reflect.Ptr:
		return handlePointerType(fieldValue, fieldType, ctx, flag)
	default:
		return handleSpecialTypes(fieldValue, fieldType, ctx, flag)
	}
	return nil
}

// handlePointerType handles pointer type fields
func handlePointerType(fieldValue reflect.Value, fieldType reflect.Type, ctx *cli.Context, flag string) error {
	elem := reflect.New(fieldType.Elem())
	if unmarshaler, ok := elem.Interface().(encoding.TextUnmarshaler); ok {
		if err := unmarshaler.UnmarshalText([]byte(ctx.String(flag))); err != nil {
			return err
		}
		fieldValue.Set(elem)
		return nil
	}
	return fmt.Errorf("unsupported pointer type: %v", fieldType)
}

// handleSpecialTypes handles non-primitive types that need special handling
func handleSpecialTypes(fieldValue reflect.Value, fieldType reflect.Type, ctx *cli.Context, flag string) error {
	if fieldType == reflect.TypeOf(common.Address{}) {
		addrStr := ctx.String(flag)
		if !common.IsHexAddress(addrStr) {
			return fmt.Errorf("invalid address: %s", addrStr)
		}
		fieldValue.Set(reflect.ValueOf(common.HexToAddress(addrStr)))
		return nil
	}

	if fieldType == reflect.TypeOf(common.Hash{}) {
		hashStr := strings.TrimPrefix(ctx.String(flag), "0x")
		if hashStr != "" {
			// 32 bytes, 64 hex chars without the 0x prefix
			if len(hashStr) != 64 {
				return fmt.Errorf("invalid hash: length must be 64 characters")
			}
			if _, err := hex.DecodeString(hashStr); err != nil {
				return fmt.Errorf("invalid hash: non-hex characters in hash")
			}
		}
		fieldValue.Set(reflect.ValueOf(common.HexToHash(hashStr)))
		return nil
	}

	if unmarshaler, ok := fieldValue.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return unmarshaler.UnmarshalText([]byte(ctx.String(flag)))
	}

	return fmt.Errorf("unsupported type: %v", fieldType)
}
