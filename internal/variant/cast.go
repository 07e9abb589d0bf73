package variant

import (
	"strconv"

	"github.com/strata-db/strata/internal/errors"
)

// Cast converts a value to the target kind using the widest-lossless rule:
// identity casts always succeed, strings parse to numbers with the standard
// numeric grammar, numbers format to exact decimal strings, and boolean is
// reachable only from a boolean source. Everything else fails with a cast
// error; extraction of absent paths is handled by Extract, not here.
func Cast(v Value, target Kind) (Value, error) {
	if v.kind == target {
		return v, nil
	}

	switch target {
	case KindNumber:
		if v.kind == KindString {
			n, err := strconv.ParseFloat(v.str, 64)
			if err != nil {
				return Null(), errors.CastFailed(v.kind.String(), target.String()).
					WithDetail("input", v.str)
			}
			return Number(n), nil
		}
	case KindString:
		if v.kind == KindNumber {
			return String(strconv.FormatFloat(v.number, 'f', -1, 64)), nil
		}
	case KindBoolean:
		// Boolean is only reachable from a boolean source, which the
		// identity case above already handled.
	}

	return Null(), errors.CastFailed(v.kind.String(), target.String())
}
