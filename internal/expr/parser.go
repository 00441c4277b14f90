package expr

// AST node types. The evaluator walks these directly; there is no bytecode.

type node interface{}

type literalNode struct {
	val any
}

type varNode struct {
	name string
}

type listNode struct {
	items []node
}

type callNode struct {
	name string
	args []node
}

type unaryNode struct {
	op      string // "-" or "not"
	operand node
}

type binaryNode struct {
	op          string // comparison, arithmetic, "and", "or", "in", "not in"
	left, right node
}

type parser struct {
	tokens []token
	pos    int
}

func parse(input string) (node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		if t.kind == tokenOp && t.text == ";" {
			return nil, &Error{Kind: ErrMultiStatement, Err: errNewf("multi-statement expressions are not allowed (found ';')")}
		}
		if t.kind == tokenOp && t.text == "=" {
			return nil, &Error{Kind: ErrAssignment, Err: errNewf("assignment is not allowed here (use == for comparison)")}
		}
	}
	p := &parser{tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokenEOF {
		return nil, syntaxErrorf("unexpected %q at position %d", p.peek().text, p.peek().pos)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptIdent(word string) bool {
	t := p.peek()
	if t.kind == tokenIdent && t.text == word {
		p.next()
		return true
	}
	return false
}

func (p *parser) acceptOp(op string) bool {
	t := p.peek()
	if t.kind == tokenOp && t.text == op {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectOp(op string) error {
	t := p.peek()
	if t.kind != tokenOp || t.text != op {
		return syntaxErrorf("expected %q at position %d", op, t.pos)
	}
	p.next()
	return nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.acceptIdent("not") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "not", operand: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.kind == tokenOp && comparisonOps[t.text]:
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: t.text, left: left, right: right}
		case t.kind == tokenIdent && t.text == "in":
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "in", left: left, right: right}
		case t.kind == tokenIdent && t.text == "not":
			// "not in" is the only postfix use of "not"
			if p.pos+1 < len(p.tokens) && p.tokens[p.pos+1].kind == tokenIdent && p.tokens[p.pos+1].text == "in" {
				p.next()
				p.next()
				right, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				left = &binaryNode{op: "not in", left: left, right: right}
				continue
			}
			return left, nil
		default:
			return left, nil
		}
	}
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		if p.acceptOp("+") {
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "+", left: left, right: right}
		} else if p.acceptOp("-") {
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "-", left: left, right: right}
		} else {
			return left, nil
		}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind == tokenOp && (t.text == "*" || t.text == "/" || t.text == "%") {
			p.next()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: t.text, left: left, right: right}
		} else {
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.acceptOp("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "-", operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokenNumber:
		p.next()
		return &literalNode{val: t.val}, nil
	case tokenString:
		p.next()
		return &literalNode{val: t.val}, nil
	case tokenIdent:
		switch t.text {
		case "true":
			p.next()
			return &literalNode{val: true}, nil
		case "false":
			p.next()
			return &literalNode{val: false}, nil
		case "null", "none":
			p.next()
			return &literalNode{val: nil}, nil
		}
		p.next()
		if p.peek().kind == tokenOp && p.peek().text == "(" {
			p.next()
			var args []node
			if !(p.peek().kind == tokenOp && p.peek().text == ")") {
				for {
					arg, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if p.acceptOp(",") {
						continue
					}
					break
				}
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return &callNode{name: t.text, args: args}, nil
		}
		return &varNode{name: t.text}, nil
	case tokenOp:
		switch t.text {
		case "(":
			p.next()
			first, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			// a parenthesized comma list is a list literal, e.g. x in ("a", "b")
			if p.acceptOp(",") {
				items := []node{first}
				if !(p.peek().kind == tokenOp && p.peek().text == ")") {
					for {
						item, err := p.parseOr()
						if err != nil {
							return nil, err
						}
						items = append(items, item)
						if p.acceptOp(",") {
							continue
						}
						break
					}
				}
				if err := p.expectOp(")"); err != nil {
					return nil, err
				}
				return &listNode{items: items}, nil
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return first, nil
		case "[":
			p.next()
			var items []node
			if !(p.peek().kind == tokenOp && p.peek().text == "]") {
				for {
					item, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					items = append(items, item)
					if p.acceptOp(",") {
						continue
					}
					break
				}
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			return &listNode{items: items}, nil
		}
	}
	return nil, syntaxErrorf("unexpected %q at position %d", t.text, t.pos)
}
