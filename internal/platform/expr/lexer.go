package expr

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ============================================================================
// Tokenizer
// ============================================================================

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkNumber
	tkString
	tkIdent
	tkPlus
	tkMinus
	tkStar
	tkSlash
	tkPercent
	tkCaret
	tkEq
	tkNe
	tkLt
	tkGt
	tkLe
	tkGe
	tkAndAnd
	tkOrOr
	tkBang
	tkQuestion
	tkColon
	tkLParen
	tkRParen
	tkComma
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(input)

	for i < n {
		ch := input[i]
		start := i

		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '+':
			tokens = append(tokens, token{tkPlus, "+", start})
			i++
		case ch == '-':
			tokens = append(tokens, token{tkMinus, "-", start})
			i++
		case ch == '*':
			if i+1 < n && input[i+1] == '*' {
				tokens = append(tokens, token{tkCaret, "**", start})
				i += 2
				continue
			}
			tokens = append(tokens, token{tkStar, "*", start})
			i++
		case ch == '/':
			tokens = append(tokens, token{tkSlash, "/", start})
			i++
		case ch == '%':
			tokens = append(tokens, token{tkPercent, "%", start})
			i++
		case ch == '^':
			tokens = append(tokens, token{tkCaret, "^", start})
			i++
		case ch == '(':
			tokens = append(tokens, token{tkLParen, "(", start})
			i++
		case ch == ')':
			tokens = append(tokens, token{tkRParen, ")", start})
			i++
		case ch == ',':
			tokens = append(tokens, token{tkComma, ",", start})
			i++
		case ch == '?':
			tokens = append(tokens, token{tkQuestion, "?", start})
			i++
		case ch == ':':
			tokens = append(tokens, token{tkColon, ":", start})
			i++
		case ch == '=':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tkEq, "==", start})
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected '=' at position %d (assignment is not supported)", start)
		case ch == '!':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tkNe, "!=", start})
				i += 2
				continue
			}
			tokens = append(tokens, token{tkBang, "!", start})
			i++
		case ch == '<':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tkLe, "<=", start})
				i += 2
				continue
			}
			tokens = append(tokens, token{tkLt, "<", start})
			i++
		case ch == '>':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tkGe, ">=", start})
				i += 2
				continue
			}
			tokens = append(tokens, token{tkGt, ">", start})
			i++
		case ch == '&':
			if i+1 < n && input[i+1] == '&' {
				tokens = append(tokens, token{tkAndAnd, "&&", start})
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected '&' at position %d", start)
		case ch == '|':
			if i+1 < n && input[i+1] == '|' {
				tokens = append(tokens, token{tkOrOr, "||", start})
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected '|' at position %d", start)
		case ch == '\'' || ch == '"':
			s, next, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, s, start})
			i = next
		case isDigit(ch) || (ch == '.' && i+1 < n && isDigit(input[i+1])):
			next, err := scanNumber(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkNumber, input[i:next], start})
			i = next
		default:
			r, size := utf8.DecodeRuneInString(input[i:])
			if r != '_' && !unicode.IsLetter(r) {
				return nil, fmt.Errorf("unexpected character %q at position %d", r, start)
			}
			j := i + size
			for j < n {
				r, size = utf8.DecodeRuneInString(input[j:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				j += size
			}
			tokens = append(tokens, token{tkIdent, input[i:j], start})
			i = j
		}
	}

	tokens = append(tokens, token{tkEOF, "", n})
	return tokens, nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func scanNumber(input string, i int) (int, error) {
	n := len(input)
	j := i
	for j < n && isDigit(input[j]) {
		j++
	}
	if j < n && input[j] == '.' {
		j++
		for j < n && isDigit(input[j]) {
			j++
		}
	}
	if j < n && (input[j] == 'e' || input[j] == 'E') {
		k := j + 1
		if k < n && (input[k] == '+' || input[k] == '-') {
			k++
		}
		if k >= n || !isDigit(input[k]) {
			return 0, fmt.Errorf("malformed exponent at position %d", j)
		}
		for k < n && isDigit(input[k]) {
			k++
		}
		j = k
	}
	return j, nil
}

func scanString(input string, i int) (string, int, error) {
	quote := input[i]
	var buf []byte
	j := i + 1
	for j < len(input) {
		ch := input[j]
		if ch == '\\' && j+1 < len(input) {
			switch input[j+1] {
			case 'n':
				buf = append(buf, '\n')
			case 't':
				buf = append(buf, '\t')
			default:
				buf = append(buf, input[j+1])
			}
			j += 2
			continue
		}
		if ch == quote {
			return string(buf), j + 1, nil
		}
		buf = append(buf, ch)
		j++
	}
	return "", 0, fmt.Errorf("unterminated string starting at position %d", i)
}
