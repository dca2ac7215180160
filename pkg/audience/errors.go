package audience

import "fmt"

// LookupError reports a strategy that failed to resolve. The strategy's
// recipient set is empty; other strategies are unaffected.
type LookupError struct {
	Audience Name
	Relation string
	Err      error
}

func (e *LookupError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("audience %s (%s): %v", e.Audience, e.Relation, e.Err)
	}
	return fmt.Sprintf("audience %s: %v", e.Audience, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
