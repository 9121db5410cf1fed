package textutil

// Ternary picks between two values on a condition, mostly to keep log
// attribute construction on one line.
func Ternary[T any](cond bool, yes, no T) T {
	if cond {
		return yes
	}
	return no
}
