// Package builtin declares the native modules that ship with rnhost.
package builtin

import (
	"sync"

	"github.com/joeycumines/native-module-host/internal/builtin/evaluator"
	"github.com/joeycumines/native-module-host/internal/builtin/ids"
	"github.com/joeycumines/native-module-host/internal/builtin/textmetrics"
	"github.com/joeycumines/native-module-host/internal/module"
)

var registerOnce sync.Once

// Register declares the built-in modules process-wide, so hosts created
// with the default registrar install them. Later calls do nothing.
func Register() {
	registerOnce.Do(func() {
		module.Register(evaluator.Info, evaluator.Provide)
		module.Register(ids.Info, ids.Provide)
		module.Register(textmetrics.Info, textmetrics.Provide)
	})
}

// Names returns the built-in module names.
func Names() []string {
	return []string{evaluator.ModuleName, ids.ModuleName, textmetrics.ModuleName}
}
