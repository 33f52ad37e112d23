// Package ids is a native module generating identifiers.
//
// API (JS):
//
//	const { Ids } = NativeModules;
//
//	Ids.nextIntegerId([{ id: 2 }, { id: 7 }]); // 8
//	Ids.uuid();                                // "0b5d...": a random v4 UUID
//	Ids.isUuid("not-a-uuid");                  // false
package ids

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
)

// ModuleName is the name the module is installed under.
const ModuleName = "Ids"

// Info is the module registration.
var Info = module.Info{StructName: "ids.Ids", ModuleName: ModuleName}

// Provide declares the module members on b.
func Provide(b *module.Builder) any {
	b.AddConstant("nilUuid", uuid.Nil.String(), true)
	b.AddSyncFunc("nextIntegerId", func(args *jsvalue.Reader) (any, error) {
		list, _ := args.Next()
		return NextIntegerID(list), nil
	}, true)
	b.AddSyncFunc("uuid", func(*jsvalue.Reader) (any, error) {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	}, true)
	b.AddSyncFunc("isUuid", func(args *jsvalue.Reader) (any, error) {
		s, _ := args.Next()
		return s.Kind() == jsvalue.KindString && uuid.Validate(s.AsString()) == nil, nil
	}, true)
	return nil
}

// NextIntegerID returns one more than the largest "id" in list, or 1.
// Numeric strings count; anything else is ignored.
func NextIntegerID(list jsvalue.Value) int64 {
	var highest int64
	for _, item := range list.AsArray() {
		id := item.Get("id")
		var n int64
		switch id.Kind() {
		case jsvalue.KindInt64, jsvalue.KindDouble:
			n = id.AsInt64()
		case jsvalue.KindString:
			v, err := strconv.ParseInt(id.AsString(), 10, 64)
			if err != nil {
				continue
			}
			n = v
		default:
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1
}
