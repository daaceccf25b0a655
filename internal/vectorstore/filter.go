package vectorstore

import "fmt"

// ValidateFilter checks that every filter value is an exact-matchable
// scalar: string, integer, or boolean. Whole-number floats pass because
// JSON decoding produces float64 for integer literals. The API layer
// calls this before a query so bad filters fail as client errors instead
// of surfacing from the backend.
func ValidateFilter(filter map[string]any) error {
	for key, value := range filter {
		switch v := value.(type) {
		case string, int, int64, bool:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("filter key %q: fractional numbers cannot be matched exactly", key)
			}
		default:
			return fmt.Errorf("filter key %q: unsupported value type %T, filter values must be strings, integers, or booleans", key, value)
		}
	}
	return nil
}
