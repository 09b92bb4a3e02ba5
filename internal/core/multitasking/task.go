package multitasking

// Task is a resumable state machine. Every Resume advances it to its next
// suspension point. Alive reports whether more Resume calls are needed.
type Task interface {
	Resume() error
	Alive() bool
}

// MicroTask is a Task producing a value. Result is valid once Alive is false.
type MicroTask[T any] interface {
	Task
	Result() T
}

type constantTask[T any] struct{ value T }

// Constant returns an already finished task.
func Constant[T any](value T) MicroTask[T] {
	return &constantTask[T]{value: value}
}

func (t *constantTask[T]) Resume() error { return nil }
func (t *constantTask[T]) Alive() bool   { return false }
func (t *constantTask[T]) Result() T     { return t.value }

type stepsTask[T any] struct {
	steps  []func() error
	next   int
	result func() T
}

// FromSteps runs one step per Resume. A failing step finishes the task.
func FromSteps[T any](steps []func() error, result func() T) MicroTask[T] {
	return &stepsTask[T]{steps: steps, result: result}
}

func (t *stepsTask[T]) Resume() error {
	if t.next >= len(t.steps) {
		return nil
	}
	step := t.steps[t.next]
	t.next++
	if err := step(); err != nil {
		t.next = len(t.steps)
		return err
	}
	return nil
}

func (t *stepsTask[T]) Alive() bool { return t.next < len(t.steps) }

func (t *stepsTask[T]) Result() T {
	if t.result == nil {
		var zero T
		return zero
	}
	return t.result()
}

type iterateTask struct {
	n, i int
	step func(i int) error
}

// Iterate calls step for i in [0, n), one index per Resume.
func Iterate(n int, step func(i int) error) MicroTask[struct{}] {
	return &iterateTask{n: n, step: step}
}

func (t *iterateTask) Resume() error {
	if t.i >= t.n {
		return nil
	}
	i := t.i
	t.i++
	if err := t.step(i); err != nil {
		t.i = t.n
		return err
	}
	return nil
}

func (t *iterateTask) Alive() bool      { return t.i < t.n }
func (t *iterateTask) Result() struct{} { return struct{}{} }

type mapTask[A, B any] struct {
	source MicroTask[A]
	fn     func(A) B
	done   bool
	result B
}

// Map transforms the result of source once it finishes.
func Map[A, B any](source MicroTask[A], fn func(A) B) MicroTask[B] {
	return &mapTask[A, B]{source: source, fn: fn}
}

func (t *mapTask[A, B]) Resume() error {
	return t.source.Resume()
}

func (t *mapTask[A, B]) Alive() bool { return t.source.Alive() }

func (t *mapTask[A, B]) Result() B {
	if !t.done {
		t.result = t.fn(t.source.Result())
		t.done = true
	}
	return t.result
}

type flatMapTask[A, B any] struct {
	source MicroTask[A]
	fn     func(A) MicroTask[B]
	next   MicroTask[B]
}

// FlatMap chains the task produced by fn after source. Creating the second
// task costs no suspension point of its own.
func FlatMap[A, B any](source MicroTask[A], fn func(A) MicroTask[B]) MicroTask[B] {
	return &flatMapTask[A, B]{source: source, fn: fn}
}

func (t *flatMapTask[A, B]) Resume() error {
	if t.next == nil {
		if t.source.Alive() {
			if err := t.source.Resume(); err != nil {
				return err
			}
			if t.source.Alive() {
				return nil
			}
		}
		t.next = t.fn(t.source.Result())
		return nil
	}
	return t.next.Resume()
}

func (t *flatMapTask[A, B]) Alive() bool {
	if t.next == nil {
		return true
	}
	return t.next.Alive()
}

func (t *flatMapTask[A, B]) Result() B {
	if t.next == nil {
		var zero B
		return zero
	}
	return t.next.Result()
}

// Tuple holds the results of a Pair task.
type Tuple[A, B any] struct {
	First  A
	Second B
}

type pairTask[A, B any] struct {
	first  MicroTask[A]
	second MicroTask[B]
}

// Pair runs first to completion, then second.
func Pair[A, B any](first MicroTask[A], second MicroTask[B]) MicroTask[Tuple[A, B]] {
	return &pairTask[A, B]{first: first, second: second}
}

func (t *pairTask[A, B]) Resume() error {
	if t.first.Alive() {
		return t.first.Resume()
	}
	return t.second.Resume()
}

func (t *pairTask[A, B]) Alive() bool { return t.first.Alive() || t.second.Alive() }

func (t *pairTask[A, B]) Result() Tuple[A, B] {
	return Tuple[A, B]{First: t.first.Result(), Second: t.second.Result()}
}

type joinTask[T any] struct {
	tasks   []MicroTask[T]
	current int
}

// Join runs tasks sequentially and collects their results in order.
func Join[T any](tasks []MicroTask[T]) MicroTask[[]T] {
	return &joinTask[T]{tasks: tasks}
}

func (t *joinTask[T]) skipFinished() {
	for t.current < len(t.tasks) && !t.tasks[t.current].Alive() {
		t.current++
	}
}

func (t *joinTask[T]) Resume() error {
	t.skipFinished()
	if t.current == len(t.tasks) {
		return nil
	}
	if err := t.tasks[t.current].Resume(); err != nil {
		t.current = len(t.tasks)
		return err
	}
	t.skipFinished()
	return nil
}

func (t *joinTask[T]) Alive() bool {
	t.skipFinished()
	return t.current < len(t.tasks)
}

func (t *joinTask[T]) Result() []T {
	out := make([]T, len(t.tasks))
	for i, task := range t.tasks {
		out[i] = task.Result()
	}
	return out
}
