package hotkey

// Modifier is a bit mask of held modifier keys
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModMeta
)

// AnyKey is registered with the hook while a new combination is being captured.
// A hook that sees it registered forwards every non-modifier key press.
const AnyKey = -1

// Combination is a set of modifiers plus one key code
type Combination struct {
	Modifiers Modifier
	Key       int
}

// String returns the human-readable form, e.g. "Ctrl+Alt+F9"
func (c Combination) String() string {
	return Format(c)
}

// KeyEvent is delivered to a binding's Executer from the hook goroutine.
type KeyEvent struct {
	ID           string
	Combination  Combination
	NewSelection bool
}

// Executer is invoked for every key event routed to a binding. It runs on the
// hook goroutine and must return promptly.
type Executer func(ev KeyEvent)

// Hook is the OS-level key hook capability
type Hook interface {
	Register(c Combination) error
	Unregister(c Combination) error
	// Listen starts delivering key-down events for registered combinations.
	Listen(fn func(c Combination)) error
	Close() error
}
