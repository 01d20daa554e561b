// Package calc implements the keypad calculator: an input state machine that
// builds an arithmetic expression and an evaluator for it.
package calc

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
)

// ErrorDisplay is shown after a failed evaluation.
const ErrorDisplay = "Error"

// Keys understood by Press besides digits and operators.
const (
	KeyClear  = "AC"
	KeyDelete = "DEL"
	KeyEquals = "="
)

var (
	allowed = regexp.MustCompile(`^[0-9+\-*/().\s]*$`)
	number  = regexp.MustCompile(`[0-9]*\.?[0-9]*`)
)

type mode int

const (
	modeEdit mode = iota
	modeResult
	modeError
)

// Calculator is the keypad state. The zero value is not ready; use New.
type Calculator struct {
	display string
	mode    mode
}

func New() *Calculator {
	return &Calculator{display: "0"}
}

// Display returns what the calculator shows.
func (c *Calculator) Display() string { return c.display }

// Errored reports whether the calculator is in the Error state.
func (c *Calculator) Errored() bool { return c.mode == modeError }

func isOperator(b byte) bool {
	return b == '+' || b == '-' || b == '*' || b == '/'
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (c *Calculator) last() byte { return c.display[len(c.display)-1] }

// token returns the number being typed at the end of the display.
func (c *Calculator) token() string {
	i := strings.LastIndexAny(c.display, "+-*/()")
	return c.display[i+1:]
}

// Press applies one key. Only unknown keys are errors; keys that make no
// sense in the current state are ignored.
func (c *Calculator) Press(key string) error {
	switch key {
	case "×", "x":
		key = "*"
	case "÷":
		key = "/"
	case "C", "c", "ac":
		key = KeyClear
	case "del", "⌫", "Backspace":
		key = KeyDelete
	case "Enter":
		key = KeyEquals
	}

	if key == KeyClear {
		c.display, c.mode = "0", modeEdit
		return nil
	}
	if len(key) != 1 && key != KeyDelete {
		return &apperr.ValidationError{Field: "key", Msg: fmt.Sprintf("unknown key %q", key)}
	}

	switch c.mode {
	case modeError:
		// only a fresh start leaves the Error state
		if key == "(" || key == "." || isDigit(key[0]) {
			c.display, c.mode = "0", modeEdit
			break
		}
		if len(key) == 1 && !strings.ContainsAny(key, "+-*/)=") {
			return &apperr.ValidationError{Field: "key", Msg: fmt.Sprintf("unknown key %q", key)}
		}
		return nil
	case modeResult:
		switch {
		case key == KeyDelete:
			return nil
		case key == "(" || key == "." || isDigit(key[0]):
			c.display = "0"
		}
		c.mode = modeEdit
	}

	switch {
	case key == KeyDelete:
		c.display = c.display[:len(c.display)-1]
		if c.display == "" {
			c.display = "0"
		}
	case key == KeyEquals:
		c.Equals()
	case isDigit(key[0]):
		c.digit(key)
	case key == ".":
		c.point()
	case isOperator(key[0]):
		c.operator(key[0])
	case key == "(":
		c.open()
	case key == ")":
		c.close()
	default:
		return &apperr.ValidationError{Field: "key", Msg: fmt.Sprintf("unknown key %q", key)}
	}
	return nil
}

// PressAll feeds every character of keys to Press, treating "AC" and "DEL"
// as single keys.
func (c *Calculator) PressAll(keys string) error {
	for len(keys) > 0 {
		var key string
		switch {
		case strings.HasPrefix(keys, KeyClear):
			key = KeyClear
		case strings.HasPrefix(keys, KeyDelete):
			key = KeyDelete
		default:
			r := []rune(keys)[0]
			key = string(r)
		}
		keys = keys[len(key):]
		if strings.TrimSpace(key) == "" {
			continue
		}
		if err := c.Press(key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Calculator) digit(d string) {
	if c.token() == "0" {
		c.display = c.display[:len(c.display)-1] + d
		return
	}
	if c.last() == ')' {
		return
	}
	c.display += d
}

func (c *Calculator) point() {
	tok := c.token()
	switch {
	case strings.Contains(tok, "."):
		return
	case c.last() == ')':
		return
	case tok == "":
		c.display += "0."
	default:
		c.display += "."
	}
}

func (c *Calculator) operator(op byte) {
	if c.display == "0" {
		if op == '-' {
			c.display = "-"
		}
		return
	}
	last := c.last()
	switch {
	case last == '(':
		if op == '-' {
			c.display += "-"
		}
	case isOperator(last):
		trimmed := c.display[:len(c.display)-1]
		if trimmed == "" || trimmed[len(trimmed)-1] == '(' {
			// a leading sign can only be a minus
			if op == '-' {
				c.display = trimmed + "-"
			}
			return
		}
		c.display = trimmed + string(op)
	default:
		c.display += string(op)
	}
}

func (c *Calculator) open() {
	if c.display == "0" {
		c.display = "("
		return
	}
	last := c.last()
	if isOperator(last) || last == '(' {
		c.display += "("
	}
}

func (c *Calculator) close() {
	opened := strings.Count(c.display, "(") - strings.Count(c.display, ")")
	last := c.last()
	if opened > 0 && !isOperator(last) && last != '(' {
		c.display += ")"
	}
}

// Equals evaluates the display. On failure the calculator enters the Error
// state instead of returning an error.
func (c *Calculator) Equals() {
	v, err := Evaluate(c.display)
	if err != nil {
		c.display, c.mode = ErrorDisplay, modeError
		return
	}
	c.display, c.mode = Format(v), modeResult
}

// Preview evaluates the display without changing state.
func (c *Calculator) Preview() (string, bool) {
	if c.mode == modeError {
		return "", false
	}
	v, err := Evaluate(c.display)
	if err != nil {
		return "", false
	}
	return Format(v), true
}

// ErrNotFinite is returned for division by zero and overflow.
var ErrNotFinite = errors.New("result is not a finite number")

// Evaluate computes an expression of numbers, + - * / (× ÷ accepted) and
// parentheses with the usual precedence. A trailing operator is ignored.
func Evaluate(expression string) (float64, error) {
	s := strings.NewReplacer("×", "*", "÷", "/").Replace(expression)
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "+-*/ ")
	if s == "" {
		return 0, &apperr.ValidationError{Field: "expression", Msg: "is empty"}
	}
	if !allowed.MatchString(s) {
		return 0, &apperr.ValidationError{Field: "expression", Msg: "contains unsupported characters"}
	}
	s = number.ReplaceAllStringFunc(s, floatLiteral)

	program, err := expr.Compile(s, expr.AsFloat64())
	if err != nil {
		return 0, &apperr.ValidationError{Field: "expression", Msg: "is malformed"}
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, &apperr.ValidationError{Field: "expression", Msg: err.Error()}
	}
	v, ok := out.(float64)
	if !ok {
		return 0, &apperr.ValidationError{Field: "expression", Msg: "did not produce a number"}
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrNotFinite
	}
	return v, nil
}

// floatLiteral writes every number as a float so that integer arithmetic
// cannot overflow silently.
func floatLiteral(n string) string {
	switch {
	case n == "" || n == ".":
		return n
	case strings.HasPrefix(n, "."):
		n = "0" + n
	}
	switch {
	case strings.HasSuffix(n, "."):
		return n + "0"
	case !strings.Contains(n, "."):
		return n + ".0"
	}
	return n
}

// Format rounds v to 8 decimal places and drops trailing zeros.
func Format(v float64) string {
	if math.Abs(v) < 1e12 {
		v = math.Round(v*1e8) / 1e8
	}
	if v == 0 {
		return "0"
	}
	if math.Abs(v) >= 1e21 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
