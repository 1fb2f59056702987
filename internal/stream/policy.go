package stream

// Policy decides how an incoming text value combines with the stored one.
type Policy int

const (
	// ReplaceIfPresent takes the incoming value unless it is empty.
	ReplaceIfPresent Policy = iota
	// Accumulate appends the incoming fragment.
	Accumulate
	// FillIfEmpty keeps the stored value once it is non-empty.
	FillIfEmpty
)

func (p Policy) String() string {
	switch p {
	case ReplaceIfPresent:
		return "replace_if_present"
	case Accumulate:
		return "accumulate"
	case FillIfEmpty:
		return "fill_if_empty"
	default:
		return "unknown"
	}
}

// Merge combines existing and incoming according to p. A populated value
// never reverts to empty under any policy.
func (p Policy) Merge(existing, incoming string) string {
	switch p {
	case Accumulate:
		return existing + incoming
	case FillIfEmpty:
		if existing != "" {
			return existing
		}
		return incoming
	default:
		if incoming != "" {
			return incoming
		}
		return existing
	}
}
