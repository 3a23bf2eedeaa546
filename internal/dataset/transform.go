package dataset

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"sfs/forecast-engine/pkg/types"
)

// transformTimeout bounds one whole transform pass over a dataset.
const transformTimeout = 30 * time.Second

// Transform is a JavaScript row hook applied during load. The script
// must define a function transform(row) receiving an object with
// timestamp, channel, family, item_id, and demand fields. Returning
// null or undefined drops the row; returning an object replaces it.
type Transform struct {
	src  string
	prog *goja.Program

	logMu sync.Mutex
	logs  []string
}

// CompileTransform compiles a transform script.
func CompileTransform(src string) (*Transform, error) {
	prog, err := goja.Compile("transform", src, true)
	if err != nil {
		return nil, fmt.Errorf("compiling transform: %w", err)
	}
	return &Transform{src: src, prog: prog}, nil
}

// LoadTransformFile compiles a transform script from a file path.
func LoadTransformFile(path string) (*Transform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transform: %w", err)
	}
	return CompileTransform(string(data))
}

// Logs returns console output captured during the last Apply.
func (t *Transform) Logs() []string {
	t.logMu.Lock()
	defer t.logMu.Unlock()
	logs := make([]string, len(t.logs))
	copy(logs, t.logs)
	return logs
}

// Apply runs the transform over every row. A fresh VM is built per
// pass; goja runtimes are not safe for concurrent use.
func (t *Transform) Apply(rows []Row) ([]Row, error) {
	vm := goja.New()
	t.setupConsole(vm)

	if _, err := vm.RunProgram(t.prog); err != nil {
		return nil, fmt.Errorf("evaluating transform: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return nil, fmt.Errorf("transform script must define a transform(row) function")
	}

	timer := time.AfterFunc(transformTimeout, func() {
		vm.Interrupt("transform timed out")
	})
	defer timer.Stop()

	out := make([]Row, 0, len(rows))
	for i, row := range rows {
		obj := vm.NewObject()
		obj.Set("timestamp", row.Timestamp.Format(types.TimestampLayout))
		obj.Set("channel", row.Key.Channel)
		obj.Set("family", row.Key.Family)
		obj.Set("item_id", row.Key.ItemID)
		obj.Set("demand", row.Demand)

		val, err := fn(goja.Undefined(), obj)
		if err != nil {
			return nil, fmt.Errorf("transform failed on row %d: %w", i+1, err)
		}
		if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
			continue
		}

		next, err := exportRow(val, row)
		if err != nil {
			return nil, fmt.Errorf("transform returned a bad row at %d: %w", i+1, err)
		}
		out = append(out, next)
	}

	return out, nil
}

// exportRow reads the returned object back into a Row, keeping the
// original value for any absent field.
func exportRow(val goja.Value, orig Row) (Row, error) {
	exported := val.Export()
	m, ok := exported.(map[string]interface{})
	if !ok {
		return Row{}, fmt.Errorf("expected an object, got %T", exported)
	}

	row := orig
	if v, ok := m["timestamp"]; ok {
		s, ok := v.(string)
		if !ok {
			return Row{}, fmt.Errorf("timestamp must be a string")
		}
		ts, err := time.Parse(types.TimestampLayout, s)
		if err != nil {
			return Row{}, fmt.Errorf("timestamp: %w", err)
		}
		row.Timestamp = ts.UTC()
	}
	if v, ok := m["channel"]; ok {
		row.Key.Channel = fmt.Sprintf("%v", v)
	}
	if v, ok := m["family"]; ok {
		row.Key.Family = fmt.Sprintf("%v", v)
	}
	if v, ok := m["item_id"]; ok {
		row.Key.ItemID = fmt.Sprintf("%v", v)
	}
	if v, ok := m["demand"]; ok {
		switch d := v.(type) {
		case float64:
			row.Demand = d
		case int64:
			row.Demand = float64(d)
		default:
			return Row{}, fmt.Errorf("demand must be a number, got %T", v)
		}
	}
	return row, nil
}

// setupConsole wires console.log and friends into the captured log.
func (t *Transform) setupConsole(vm *goja.Runtime) {
	t.logMu.Lock()
	t.logs = nil
	t.logMu.Unlock()

	appendLog := func(level string, args []goja.Value) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = fmt.Sprintf("%v", arg.Export())
		}
		t.logMu.Lock()
		t.logs = append(t.logs, fmt.Sprintf("[%s] %s", level, strings.Join(parts, " ")))
		t.logMu.Unlock()
	}

	console := vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		appendLog("LOG", call.Arguments)
		return goja.Undefined()
	})
	console.Set("warn", func(call goja.FunctionCall) goja.Value {
		appendLog("WARN", call.Arguments)
		return goja.Undefined()
	})
	console.Set("error", func(call goja.FunctionCall) goja.Value {
		appendLog("ERROR", call.Arguments)
		return goja.Undefined()
	})
	vm.Set("console", console)
}
