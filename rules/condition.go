package rules

// CheckCondition evaluates a predicate against an input record.
// Conditions gate optional behavior, so a missing field is "false",
// never an error, and no well-typed input can make evaluation fail.
func CheckCondition(c *Condition, input map[string]any) bool {
	if c == nil {
		return false
	}

	if len(c.And) > 0 {
		for _, child := range c.And {
			if !CheckCondition(child, input) {
				return false
			}
		}
		return true
	}

	if len(c.Or) > 0 {
		for _, child := range c.Or {
			if CheckCondition(child, input) {
				return true
			}
		}
		return false
	}

	raw, ok := lookupField(input, c.Field)
	if !ok {
		return false
	}

	switch c.Op {
	case OpEq:
		return looseEqual(raw, c.Value)

	case OpLt, OpGt, OpGte, OpLte:
		left, okL := toNumber(raw)
		right, okR := toNumber(c.Value)
		if !okL || !okR {
			return false
		}
		switch c.Op {
		case OpLt:
			return left < right
		case OpGt:
			return left > right
		case OpGte:
			return left >= right
		case OpLte:
			return left <= right
		}

	case OpBetween:
		// Inclusive on both ends, unlike range lookups. The asymmetry
		// is deliberate: "between 0 and 7" reads as closed to authors,
		// while lookup tables need half-open buckets to avoid
		// double-matching at boundaries.
		bounds, ok := c.Value.([]any)
		if !ok || len(bounds) != 2 {
			return false
		}
		n, okN := toNumber(raw)
		lo, okLo := toNumber(bounds[0])
		hi, okHi := toNumber(bounds[1])
		if !okN || !okLo || !okHi {
			return false
		}
		return n >= lo && n <= hi

	case OpIn:
		list, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if looseEqual(raw, candidate) {
				return true
			}
		}
		return false
	}

	return false
}

// looseEqual compares an input value with a document literal, coercing
// once to numbers when both sides are numeric-looking, otherwise
// comparing as strings.
func looseEqual(a, b any) bool {
	an, okA := toNumber(a)
	bn, okB := toNumber(b)
	if okA && okB {
		return an == bn
	}
	return stringify(a) == stringify(b)
}
