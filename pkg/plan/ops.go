package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/token"
)

// ErrDivisionByZero is returned when an integer or float is divided by zero.
var ErrDivisionByZero = errors.New("division by zero")

// binaryOp applies a non-logical binary operator. NULL operands yield NULL.
func binaryOp(op token.TokenType, l, r any) (any, error) {
	if l == nil || r == nil {
		return nil, nil
	}
	switch op {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT:
		return arithmetic(op, l, r)
	case token.DPIPE:
		return core.ToString(l) + core.ToString(r), nil
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE:
		return comparison(op, l, r)
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

func arithmetic(op token.TokenType, l, r any) (any, error) {
	li, lInt := l.(int64)
	ri, rInt := r.(int64)
	if lInt && rInt {
		switch op {
		case token.PLUS:
			return li + ri, nil
		case token.MINUS:
			return li - ri, nil
		case token.STAR:
			return li * ri, nil
		case token.SLASH:
			if ri == 0 {
				return nil, ErrDivisionByZero
			}
			return li / ri, nil
		case token.PERCENT:
			if ri == 0 {
				return nil, ErrDivisionByZero
			}
			return li % ri, nil
		}
	}

	lf, lok := core.ToFloat(l)
	rf, rok := core.ToFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("cannot apply %s to %s and %s", op, core.TypeOf(l), core.TypeOf(r))
	}
	switch op {
	case token.PLUS:
		return lf + rf, nil
	case token.MINUS:
		return lf - rf, nil
	case token.STAR:
		return lf * rf, nil
	case token.SLASH:
		if rf == 0 {
			return nil, ErrDivisionByZero
		}
		return lf / rf, nil
	default:
		if rf == 0 {
			return nil, ErrDivisionByZero
		}
		return math.Mod(lf, rf), nil
	}
}

func comparison(op token.TokenType, l, r any) (any, error) {
	c, ok := core.Compare(l, r)
	if !ok {
		// Mixed string/number comparisons coerce the string.
		lf, lok := core.ToFloat(l)
		rf, rok := core.ToFloat(r)
		if lok && rok {
			c, ok = core.Compare(lf, rf)
		}
	}
	if !ok {
		switch op {
		case token.EQ:
			return false, nil
		case token.NE:
			return true, nil
		}
		return nil, fmt.Errorf("cannot compare %s and %s", core.TypeOf(l), core.TypeOf(r))
	}
	switch op {
	case token.EQ:
		return c == 0, nil
	case token.NE:
		return c != 0, nil
	case token.LT:
		return c < 0, nil
	case token.GT:
		return c > 0, nil
	case token.LE:
		return c <= 0, nil
	default:
		return c >= 0, nil
	}
}

// ArithmeticType infers the result type of an arithmetic operator.
func ArithmeticType(op token.TokenType, l, r core.Type) core.Type {
	switch {
	case op == token.DPIPE:
		return core.TypeString
	case l == core.TypeInt && r == core.TypeInt:
		return core.TypeInt
	case l.IsNumeric() && r.IsNumeric():
		return core.TypeFloat
	default:
		return core.TypeAny
	}
}
