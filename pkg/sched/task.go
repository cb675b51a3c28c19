package sched

// Task is a unit of deferred work.
type Task interface {
	Run()
}

// Func adapts a plain function to the Task interface.
type Func func()

// Run calls f().
func (f Func) Run() { f() }

// FuncWithData adapts a one-argument function to the Task interface.
// Data is passed verbatim on every invocation.
type FuncWithData struct {
	Fn   func(data any)
	Data any
}

// Run calls f.Fn(f.Data).
func (f FuncWithData) Run() { f.Fn(f.Data) }

// Kind tells how a slot's task was registered.
type Kind uint8

const (
	// KindTask is a caller-owned Task registered with AddTask.
	KindTask Kind = iota + 1
	// KindFunc is a function registered with AddFunc.
	KindFunc
	// KindFuncWithData is a function and its argument registered with AddFuncWithData.
	KindFuncWithData
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindFunc:
		return "func"
	case KindFuncWithData:
		return "func_with_data"
	default:
		return "none"
	}
}

// ownership records who is responsible for a slot's task.
type ownership uint8

const (
	// unowned: the slot is free.
	unowned ownership = iota
	// borrowed: the caller owns the task; the slot only references it.
	borrowed
	// owned: the task is a wrapper stored inline in the slot and released with it.
	owned
)
