package assert

import "fmt"

// NotNil panics if value is nil. Typed nil pointers stored in interfaces are not caught.
func NotNil(value any, name ...string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", label(name)))
	}
}

func NotEmptyStr(str string, name ...string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be non-empty", label(name)))
	}
}

func Positive[T int | int64 | float64](value T, name ...string) {
	if value <= 0 {
		panic(fmt.Sprintf("expected %s to be positive, got %v", label(name), value))
	}
}

func label(name []string) string {
	if len(name) == 0 {
		return "value"
	}
	return name[0]
}
