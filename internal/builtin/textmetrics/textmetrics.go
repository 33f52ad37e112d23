// Package textmetrics is a native module measuring monospace display width.
//
// API (JS):
//
//	const { TextMetrics } = NativeModules;
//
//	TextMetrics.width("🏳️‍🌈");                 // 2
//	TextMetrics.truncate("Long string", 5);     // "Lo..."
//	TextMetrics.truncate("Long string", 5, ""); // "Long "
//	TextMetrics.graphemes("éa");          // 2
package textmetrics

import (
	"errors"
	"strings"

	"github.com/joeycumines/native-module-host/internal/jsvalue"
	"github.com/joeycumines/native-module-host/internal/module"
	"github.com/rivo/uniseg"
)

// ModuleName is the name the module is installed under.
const ModuleName = "TextMetrics"

// Info is the module registration.
var Info = module.Info{StructName: "textmetrics.TextMetrics", ModuleName: ModuleName}

// DefaultTail is appended by Truncate when no tail is given.
const DefaultTail = "..."

// Provide declares the module members on b.
func Provide(b *module.Builder) any {
	b.AddConstant("defaultTail", DefaultTail, true)
	b.AddSyncFunc("width", func(args *jsvalue.Reader) (any, error) {
		s, _ := args.Next()
		return uniseg.StringWidth(s.AsString()), nil
	}, true)
	b.AddSyncFunc("graphemes", func(args *jsvalue.Reader) (any, error) {
		s, _ := args.Next()
		return uniseg.GraphemeClusterCount(s.AsString()), nil
	}, true)
	b.AddSyncFunc("truncate", func(args *jsvalue.Reader) (any, error) {
		if args.Len() < 2 {
			return nil, errors.New("truncate requires at least 2 arguments (string, maxWidth)")
		}
		s, _ := args.Next()
		maxWidth, _ := args.Next()
		tail := DefaultTail
		if t, ok := args.Next(); ok && t.Kind() == jsvalue.KindString {
			tail = t.AsString()
		}
		return Truncate(s.AsString(), int(maxWidth.AsInt64()), tail), nil
	}, true)
	return nil
}

// Truncate shortens s to at most maxWidth display columns, appending tail
// when it cuts. Grapheme clusters are never split. A tail wider than
// maxWidth is returned as is.
func Truncate(s string, maxWidth int, tail string) string {
	if uniseg.StringWidth(s) <= maxWidth {
		return s
	}
	tailWidth := uniseg.StringWidth(tail)
	if tailWidth > maxWidth {
		return tail
	}
	target := maxWidth - tailWidth

	var sb strings.Builder
	var width int
	state := -1
	for rest := s; rest != ""; {
		var cluster string
		var w int
		cluster, rest, w, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if width+w > target {
			break
		}
		width += w
		sb.WriteString(cluster)
	}
	sb.WriteString(tail)
	return sb.String()
}
