package shader

// Stmt is a statement.
type Stmt interface {
	stmt()
}

// Assign writes a local or private variable.
type Assign struct {
	Value Expr
	Name  string
}

// Store writes one u32 word to a storage buffer.
type Store struct {
	Index  Expr
	Value  Expr
	Buffer string
}

// If runs Then when Cond holds, else Else.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// Block is a labeled statement list; Break leaves it.
type Block struct {
	Label string
	Body  []Stmt
}

// Loop repeats Body until a Break targets it. Continue restarts it.
type Loop struct {
	Label string
	Body  []Stmt
}

// Break leaves the enclosing Block or Loop with the given label.
type Break struct {
	Label string
}

// Continue restarts the enclosing Loop with the given label.
type Continue struct {
	Label string
}

// Case is one arm of a Switch.
type Case struct {
	Body   []Stmt
	Values []uint32
}

// Switch runs the first case listing the u32 selector, or Default.
// Cases do not fall through.
type Switch struct {
	Selector Expr
	Cases    []Case
	Default  []Stmt
}

// Return leaves the function with one value per declared result.
type Return struct {
	Values []Expr
}

// Call invokes a function and assigns its results to the named variables.
type Call struct {
	Func    string
	Args    []Expr
	Results []string
}

// Trap aborts the invocation. Backends record Code in the lane's trap word
// and return from the entry point.
type Trap struct {
	Code uint32
}

func (*Assign) stmt()   {}
func (*Store) stmt()    {}
func (*If) stmt()       {}
func (*Block) stmt()    {}
func (*Loop) stmt()     {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}
func (*Switch) stmt()   {}
func (*Return) stmt()   {}
func (*Call) stmt()     {}
func (*Trap) stmt()     {}
