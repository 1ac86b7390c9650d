package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/kanadeck/internal/domain"
)

// field is the card field a block of lines is being read into.
type field int

const (
	none field = iota
	front
	back
	category
	tags
)

// prefixes maps a line prefix to the field it opens. "Q:" always starts a new card.
var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", front},
	{"A:", back},
	{"C:", category},
	{"T:", tags},
}

// ParseFile reads a markdown file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse extracts cards from markdown. A card is a "Q:" block followed by
// optional "A:", "C:" (category) and "T:" (comma separated tags) blocks.
// Lines without a prefix continue the current block; "---" ends a card.
// Cards without a question are dropped.
func Parse(r io.Reader) ([]domain.Card, error) {
	p := &cardParser{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finishCard()
	return p.cards, nil
}

type cardParser struct {
	cards   []domain.Card
	current domain.Card
	field   field
	block   []string
}

func (p *cardParser) line(line string) {
	if line == "---" {
		p.finishCard()
		return
	}

	for _, pf := range prefixes {
		if !strings.HasPrefix(line, pf.prefix) {
			continue
		}
		p.flushBlock()
		if pf.field == front && p.field != none {
			p.finishCard()
		}
		p.field = pf.field
		p.block = append(p.block, strings.TrimPrefix(line[len(pf.prefix):], " "))
		return
	}

	if p.field != none {
		p.block = append(p.block, line)
	}
}

// flushBlock stores the accumulated lines in the current field.
func (p *cardParser) flushBlock() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimSpace(strings.Join(p.block, "\n"))
	switch p.field {
	case front:
		p.current.Front = content
	case back:
		p.current.Back = content
	case category:
		p.current.Category = content
	case tags:
		for _, tag := range strings.Split(content, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				p.current.Tags = append(p.current.Tags, tag)
			}
		}
	}
	p.block = nil
}

func (p *cardParser) finishCard() {
	p.flushBlock()
	if p.current.Front != "" {
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Card{}
	p.field = none
}
