package lower

import (
	"fmt"

	"github.com/LucentFlux/wasm-gpu/program"
	"github.com/LucentFlux/wasm-gpu/shader"
)

// Direct emits the direct variant of f: an ordinary shader function taking
// f's parameters and returning its results. Calls that need the stack
// machine or the host trap instead.
func (c *Context) Direct(f *program.Function) *shader.Function {
	e := newEmitter(c, f)
	fn := &shader.Function{Name: c.DirectName(f.Index)}

	var body []shader.Stmt
	for i, t := range f.Type.Params {
		a := fmt.Sprintf("a%d", i)
		fn.Params = append(fn.Params, shader.Variable{Name: a, Type: shader.FromValue(t, c.Layout)})
		body = append(body, &shader.Assign{Name: e.local(uint32(i)), Value: shader.V(a)})
	}
	for _, t := range f.Type.Results {
		fn.Results = append(fn.Results, shader.FromValue(t, c.Layout))
	}

	e.labels = []label{{fn: true, types: f.Type.Results}}
	body = append(body, e.seq(f.Body)...)
	body = append(body, &shader.Return{Values: e.slots(f.Type.Results, 0, len(f.Type.Results))})

	fn.Locals = e.decls
	fn.Body = body
	return fn
}
