package transport

import "fmt"

// debugging gates the verbose wire-level trace used while developing the
// state machine. It costs nothing in normal builds since the calls below
// are trivially inlined away by the compiler when false.
const debugging = false

func debug(format string, args ...interface{}) {
	if debugging {
		fmt.Printf(format+"\n", args...)
	}
}

func sprint(args ...interface{}) string {
	return fmt.Sprint(args...)
}
