package query

import "strings"

// operators is the whitelist of SQL operators accepted in conditions.
var operators = map[string]struct{}{
	"&": {}, ">": {}, ">>": {}, ">=": {}, "<": {}, "<>": {}, "!=": {}, "<<": {},
	"<=": {}, "<=>": {}, "%": {}, "*": {}, "+": {}, "-": {}, "->": {}, "->>": {},
	"/": {}, ":=": {}, "=": {}, "^": {}, "~": {},
	"AND": {}, "&&": {}, "BETWEEN": {}, "BINARY": {}, "CASE": {}, "OR": {},
	"||": {}, "XOR": {}, "|": {}, "NOT": {}, "!": {}, "IN": {}, "NOT IN": {},
	"IS": {}, "IS NOT": {}, "LIKE": {}, "NOT LIKE": {}, "NOT REGEXP": {}, "REGEXP": {},
}

// Operator normalizes op and falls back to "=" when it is not whitelisted.
func Operator(op string) string {
	o := strings.ToUpper(strings.TrimSpace(op))
	if _, ok := operators[o]; ok {
		return o
	}
	return "="
}
