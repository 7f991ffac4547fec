package utils

// MustBeTrue panics with err if condition does not hold.
func MustBeTrue(condition bool, err error) {
	if !condition {
		panic(err)
	}
}
